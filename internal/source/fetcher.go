package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/darmiel/warrant/internal/core"
	"github.com/darmiel/warrant/internal/logging"
)

type Fetcher interface {
	Fetch(ctx context.Context, log logging.InternalLogger) ([]core.Role, error)
}

// DirFetcher loads role documents from a file or from every .yaml, .yml and .json
// file below a directory. Files are read in lexical order.
type DirFetcher struct {
	Path string
}

func (f DirFetcher) Fetch(ctx context.Context, logger logging.InternalLogger) ([]core.Role, error) {
	files, err := f.files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warn("No role documents found in %s", f.Path)
		return nil, nil
	}

	var allRoles []core.Role
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		roles, err := ParseRoles(data)
		if err != nil {
			logger.Error("Failed to parse %s: %v", path, err)
			return nil, fmt.Errorf("syntax error in %s: %w", path, err)
		}
		logger.Debug("Loaded %s, found %d roles", path, len(roles))
		allRoles = append(allRoles, roles...)
	}

	logger.Info("Fetch complete. Total roles loaded: %d", len(allRoles))
	return allRoles, nil
}

func (f DirFetcher) files() ([]string, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return nil, fmt.Errorf("stat policy path: %w", err)
	}
	if !info.IsDir() {
		return []string{f.Path}, nil
	}

	var files []string
	err = filepath.WalkDir(f.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != f.Path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && isDocument(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing policy path: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// ParseRoles reads a role document. A document is either a single role or a
// list of roles under 'roles'. JSON documents are accepted as well.
func ParseRoles(data []byte) ([]core.Role, error) {
	var multi struct {
		Roles []core.Role `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &multi); err != nil {
		return nil, err
	}
	if len(multi.Roles) > 0 {
		return multi.Roles, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var role core.Role
	if err := yaml.Unmarshal(data, &role); err != nil {
		return nil, err
	}
	return []core.Role{role}, nil
}

// LoadPermissionPolicy reads a standalone permission policy, e.g. the global guardrail.
func LoadPermissionPolicy(path string) (*core.PermissionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading permission policy: %w", err)
	}
	var policy core.PermissionPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parsing permission policy %s: %w", path, err)
	}
	return &policy, nil
}
