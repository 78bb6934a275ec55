package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Permission is a single concrete (action, resource) pair.
type Permission struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

func (p Permission) less(o Permission) bool {
	if p.Action != o.Action {
		return p.Action < o.Action
	}
	return p.Resource < o.Resource
}

// PermissionSet is a sorted, de-duplicated set of permissions.
// Use NewPermissionSet to construct one; the zero value is the empty set.
type PermissionSet []Permission

func NewPermissionSet(perms ...Permission) PermissionSet {
	if len(perms) == 0 {
		return PermissionSet{}
	}
	cpy := make([]Permission, len(perms))
	copy(cpy, perms)
	sort.Slice(cpy, func(i, j int) bool {
		return cpy[i].less(cpy[j])
	})
	out := cpy[:1]
	for _, p := range cpy[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

func (s PermissionSet) Contains(p Permission) bool {
	i := sort.Search(len(s), func(i int) bool {
		return !s[i].less(p)
	})
	return i < len(s) && s[i] == p
}

// Intersect returns all permissions present in both sets.
func (s PermissionSet) Intersect(o PermissionSet) PermissionSet {
	out := PermissionSet{}
	for _, p := range s {
		if o.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// Subtract returns all permissions of s which are not in o.
func (s PermissionSet) Subtract(o PermissionSet) PermissionSet {
	out := PermissionSet{}
	for _, p := range s {
		if !o.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// Digest is a stable reference to the set's contents.
func (s PermissionSet) Digest() string {
	h := sha256.New()
	for _, p := range s {
		h.Write([]byte(p.Action))
		h.Write([]byte{0})
		h.Write([]byte(p.Resource))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
