package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/specialistvlad/datagridgo/internal/operator"
)

// Version is mixed into Fingerprint. Bump it when registry semantics change
// in a way that affects operator output.
const Version = "1"

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// Factory validates a step's config and returns a ready operator, or an error
// (usually one or more *operator.ConfigError) naming the offending fields.
type Factory func(cfg operator.Config) (operator.Operator, error)

// Module is the interface that operator packages implement to be registered.
// Built-in and externally supplied operators register the same way.
type Module interface {
	Register(r *Registry) error
}

// Registry maps operator names to factories for a single application instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Duplicate or malformed names are
// rejected with a *RegistrationError.
func (r *Registry) Register(name string, factory Factory) error {
	if !namePattern.MatchString(name) {
		return &RegistrationError{Name: name, Reason: "name must be lowercase, dot-separated identifiers"}
	}
	if factory == nil {
		return &RegistrationError{Name: name, Reason: "factory is nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return &RegistrationError{Name: name, Reason: "already registered"}
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for built-in operators, where a failure is a
// programmer error.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Install registers every module in order and stops at the first failure.
func (r *Registry) Install(modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(r); err != nil {
			return fmt.Errorf("install %T: %w", m, err)
		}
	}
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns all registered operator names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered operators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Fingerprint identifies the registered operator set. It is one of the
// inputs to the cache environment hash.
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "registry/%s\n", Version)
	for _, name := range r.Names() {
		fmt.Fprintln(h, name)
	}
	return hex.EncodeToString(h.Sum(nil))
}
