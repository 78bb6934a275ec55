package engine

import (
	"sort"
	"strings"
)

// Catalog is the closed set of concrete actions and resources the broker knows about.
// Wildcards in policies only ever select catalog entries.
type Catalog struct {
	actions   []string
	resources []string
}

func NewCatalog(actions, resources []string) *Catalog {
	return &Catalog{
		actions:   uniqueSorted(actions),
		resources: uniqueSorted(resources),
	}
}

func (c *Catalog) Actions() []string {
	return append([]string(nil), c.actions...)
}

func (c *Catalog) Resources() []string {
	return append([]string(nil), c.resources...)
}

// HasAction reports whether the concrete action is registered.
func (c *Catalog) HasAction(action string) bool {
	return containsSorted(c.actions, action)
}

// HasResource reports whether the concrete resource is registered.
func (c *Catalog) HasResource(resource string) bool {
	return containsSorted(c.resources, resource)
}

// expand returns the catalog entries selected by the given patterns.
// A literal that is not registered selects nothing.
func expand(patterns []string, catalog []string) []string {
	var out []string
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			// catalog is sorted, so all entries with the prefix are contiguous
			i := sort.SearchStrings(catalog, prefix)
			for ; i < len(catalog) && strings.HasPrefix(catalog[i], prefix); i++ {
				out = append(out, catalog[i])
			}
			continue
		}
		if containsSorted(catalog, p) {
			out = append(out, p)
		}
	}
	return out
}

func containsSorted(list []string, s string) bool {
	i := sort.SearchStrings(list, s)
	return i < len(list) && list[i] == s
}

func uniqueSorted(in []string) []string {
	cpy := append([]string(nil), in...)
	sort.Strings(cpy)
	out := make([]string, 0, len(cpy))
	for _, s := range cpy {
		if s == "" || (len(out) > 0 && s == out[len(out)-1]) {
			continue
		}
		out = append(out, s)
	}
	return out
}
