package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Registry maps entry name suffixes to drivers. It is built once at startup
// and passed down explicitly.
type Registry struct {
	sync.RWMutex
	suffixes map[string]Driver
	schemes  map[string]Driver
}

// NewRegistry returns a pointer to a new empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		suffixes: make(map[string]Driver),
		schemes:  make(map[string]Driver),
	}
}

// Register maps every suffix to d. Suffixes are matched case-insensitively
// and must start with a dot.
func (r *Registry) Register(d Driver, suffixes ...string) error {
	r.Lock()
	defer r.Unlock()

	for _, s := range suffixes {
		if !strings.HasPrefix(s, ".") || len(s) < 2 {
			return fmt.Errorf("(driver-register) %w: %q", ErrInvalidSuffix, s)
		}

		s = strings.ToLower(s)
		if existing, ok := r.suffixes[s]; ok && existing != d {
			return fmt.Errorf("(driver-register) %w: %q", ErrDuplicateSuffix, s)
		}
		r.suffixes[s] = d
	}

	r.schemes[d.Scheme()] = d

	return nil
}

// Detect returns the driver of the longest suffix matching name.
func (r *Registry) Detect(name string) (Driver, bool) {
	r.RLock()
	defer r.RUnlock()

	lower := strings.ToLower(name)

	var best string
	for s := range r.suffixes {
		if len(s) > len(best) && len(lower) > len(s) && strings.HasSuffix(lower, s) {
			best = s
		}
	}

	if best == "" {
		return nil, false
	}

	return r.suffixes[best], true
}

// Scheme returns the driver registered for the scheme.
func (r *Registry) Scheme(scheme string) (Driver, error) {
	r.RLock()
	defer r.RUnlock()

	d, ok := r.schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("(driver-scheme) %w: %q", ErrUnknownScheme, scheme)
	}

	return d, nil
}

// Suffixes returns all registered suffixes in order.
func (r *Registry) Suffixes() []string {
	r.RLock()
	defer r.RUnlock()

	suffixes := lo.Keys(r.suffixes)
	sort.Strings(suffixes)

	return suffixes
}
