// Package registry tracks the set of buildable packages and maps changed
// file paths back to their owning package.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/mdkit/internal/config"
	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
)

// Package is one independently buildable unit under the packages root.
type Package struct {
	// Name is the unique package identifier.
	Name string
	// Dir is the absolute path of the package source root.
	Dir string
	// Command overrides the global build command when non-empty.
	Command string
}

// Registry is the static package list, loaded once at startup.
type Registry struct {
	root     string
	packages []Package
	byName   map[string]Package
	// byRelDir maps each package's slash-normalized directory relative to
	// root to the package name. Resolve matches the longest prefix, so
	// explicitly configured nested directories like group/pkg work.
	byRelDir map[string]string
}

// FromConfig builds the registry from configuration. Explicitly listed
// packages win; otherwise the packages root is enumerated.
func FromConfig(cfg *config.Config) (*Registry, error) {
	root, err := filepath.Abs(cfg.PackagesRoot)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve packages root").
			WithContext("root", cfg.PackagesRoot).
			Build()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "packages root not accessible").
			WithContext("root", root).
			Build()
	}
	if !info.IsDir() {
		return nil, ferrors.ConfigError("packages root is not a directory").
			WithContext("root", root).
			Build()
	}

	if len(cfg.Packages) > 0 {
		return fromExplicit(root, cfg.Packages)
	}
	return discover(root)
}

func fromExplicit(root string, entries []config.Package) (*Registry, error) {
	pkgs := make([]Package, 0, len(entries))
	for _, e := range entries {
		dir := filepath.Join(root, e.Dir)
		if _, err := os.Stat(dir); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "configured package directory missing").
				WithContext("package", e.Name).
				WithContext("dir", dir).
				Build()
		}
		pkgs = append(pkgs, Package{Name: e.Name, Dir: dir, Command: e.Command})
	}
	return newRegistry(root, pkgs)
}

// discover enumerates immediate subdirectories of root. Hidden and
// underscore-prefixed directories are not packages.
func discover(root string) (*Registry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "enumerate packages root").
			WithContext("root", root).
			Build()
	}

	var pkgs []Package
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		pkgs = append(pkgs, Package{Name: name, Dir: filepath.Join(root, name)})
	}
	if len(pkgs) == 0 {
		return nil, ferrors.ConfigError("no packages found under packages root").
			WithContext("root", root).
			Build()
	}

	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return newRegistry(root, pkgs)
}

func newRegistry(root string, pkgs []Package) (*Registry, error) {
	r := &Registry{
		root:     root,
		packages: pkgs,
		byName:   make(map[string]Package, len(pkgs)),
		byRelDir: make(map[string]string, len(pkgs)),
	}
	for _, p := range pkgs {
		r.byName[p.Name] = p

		rel, err := filepath.Rel(root, p.Dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return nil, ferrors.ConfigError("package directory must be inside the packages root").
				WithContext("package", p.Name).
				WithContext("dir", p.Dir).
				Build()
		}
		rel = filepath.ToSlash(rel)
		if other, dup := r.byRelDir[rel]; dup {
			return nil, ferrors.ConfigError("packages share a directory").
				WithContext("dir", rel).
				WithContext("packages", other+", "+p.Name).
				Build()
		}
		r.byRelDir[rel] = p.Name
	}
	return r, nil
}

// Root returns the absolute packages root.
func (r *Registry) Root() string { return r.root }

// Packages returns the packages in stable order.
func (r *Registry) Packages() []Package {
	out := make([]Package, len(r.packages))
	copy(out, r.packages)
	return out
}

// Lookup returns the package with the given name.
func (r *Registry) Lookup(name string) (Package, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Resolve maps an arbitrary file path to the owning package name by
// matching the longest package directory prefix. The second return is
// false for paths outside every tracked package; that is not an error,
// callers drop such paths silently.
func (r *Registry) Resolve(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", false
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	prefix := filepath.ToSlash(rel)
	for {
		if name, ok := r.byRelDir[prefix]; ok {
			return name, true
		}
		i := strings.LastIndexByte(prefix, '/')
		if i < 0 {
			return "", false
		}
		prefix = prefix[:i]
	}
}
