package jdk

import (
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// Override adjusts a command's defaults from configuration.
type Override struct {
	// TTL replaces the cache TTL when non-nil; zero disables caching.
	TTL *time.Duration
	// Timeout replaces the per-attempt timeout when positive.
	Timeout time.Duration
}

// Registry holds the available commands by name.
type Registry struct {
	commands  map[string]Command
	overrides map[string]Override
	mu        sync.RWMutex
}

// NewRegistry creates a registry with every built-in command.
func NewRegistry() *Registry {
	r := &Registry{
		commands:  make(map[string]Command),
		overrides: make(map[string]Override),
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(NewListProcesses())
	r.Register(NewThreadDump())
	r.Register(NewMemoryInfo())
	r.Register(NewHistogram())
	r.Register(NewClassInfo())
	r.Register(NewClassStructure())
	r.Register(NewJvmInfo())
	r.Register(NewJstat())
	r.Register(NewJcmd())
	r.Register(NewHeapDump())
	for _, p := range Placeholders() {
		r.Register(p)
	}
}

// Register adds or replaces a command.
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name()] = cmd
}

// Configure sets the override for a command.
func (r *Registry) Configure(name string, o Override) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = o
}

// Get returns a command by name.
func (r *Registry) Get(name string) (Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	if !ok {
		return nil, core.ErrNotFound("tool", name)
	}
	return cmd, nil
}

// Has checks if a command is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// List returns the registered command names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prepare resolves name, validates args and applies any configured
// override to the resulting invocation.
func (r *Registry) Prepare(name string, args Args) (Command, *Invocation, error) {
	cmd, err := r.Get(name)
	if err != nil {
		return nil, nil, err
	}
	inv, err := cmd.Prepare(args)
	if err != nil {
		return cmd, nil, err
	}
	r.mu.RLock()
	o, ok := r.overrides[name]
	r.mu.RUnlock()
	if ok {
		if o.TTL != nil {
			inv.TTL = *o.TTL
		}
		if o.Timeout > 0 {
			inv.Spec = inv.Spec.WithTimeout(o.Timeout)
		}
	}
	return cmd, inv, nil
}
