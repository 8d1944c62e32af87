// Package preset maps architecture names to the compiled specification
// text bundled with the binary.
//
// The catalog is built once, on first use, and never changes afterwards.
// Lookups are case-insensitive: "X86-64" and "x86-64" resolve to the same
// specification.
package preset

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed sla/*.sla
var catalog embed.FS

// ErrArchNotFound is matched by every ArchNotFoundError.
var ErrArchNotFound = errors.New("arch not found in preset")

// ArchNotFoundError names the architecture that has no catalog entry.
type ArchNotFoundError struct {
	Name string
}

func (e *ArchNotFoundError) Error() string {
	return fmt.Sprintf("arch %s is not found in preset", e.Name)
}

func (e *ArchNotFoundError) Is(target error) bool {
	return target == ErrArchNotFound
}

// Registry is a read-only name to specification map over a catalog of
// "<name>.sla" files.
type Registry struct {
	src  fs.FS
	dir  string
	once sync.Once
	err  error
	sla  map[string]string
}

// NewRegistry returns a registry that will read every .sla file in dir of src
// the first time it is queried.
func NewRegistry(src fs.FS, dir string) *Registry {
	return &Registry{src: src, dir: dir}
}

var defaultRegistry = NewRegistry(catalog, "sla")

// Default returns the process-wide registry over the embedded catalog.
func Default() *Registry {
	return defaultRegistry
}

// Resolve returns the specification for an architecture name using the
// embedded catalog.
func Resolve(name string) (string, error) {
	return defaultRegistry.Resolve(name)
}

func (r *Registry) load() error {
	r.once.Do(func() {
		entries, err := fs.ReadDir(r.src, r.dir)
		if err != nil {
			r.err = fmt.Errorf("read preset catalog: %w", err)
			return
		}
		sla := make(map[string]string, len(entries))
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".sla") {
				continue
			}
			data, err := fs.ReadFile(r.src, path.Join(r.dir, e.Name()))
			if err != nil {
				r.err = fmt.Errorf("read preset %s: %w", e.Name(), err)
				return
			}
			sla[strings.ToLower(strings.TrimSuffix(e.Name(), ".sla"))] = string(data)
		}
		r.sla = sla
	})
	return r.err
}

// Resolve returns the specification text registered under name.
func (r *Registry) Resolve(name string) (string, error) {
	if err := r.load(); err != nil {
		return "", err
	}
	spec, ok := r.sla[strings.ToLower(name)]
	if !ok {
		return "", &ArchNotFoundError{Name: name}
	}
	return spec, nil
}

// Names lists the catalog keys in sorted order.
func (r *Registry) Names() []string {
	if err := r.load(); err != nil {
		return nil
	}
	names := make([]string, 0, len(r.sla))
	for name := range r.sla {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len is the number of catalog entries.
func (r *Registry) Len() int {
	if err := r.load(); err != nil {
		return 0
	}
	return len(r.sla)
}
