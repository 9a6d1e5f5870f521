package native

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bytemomo/bastion/internal/domain"
)

// ErrUnknownModule is returned by Lookup for names that were never registered.
var ErrUnknownModule = errors.New("unknown module")

// ModuleContext bundles everything a module needs for one dispatch.
type ModuleContext struct {
	ModuleID     string
	TargetID     string
	Params       map[string]any
	Expectations map[string]any
	Allowlist    []string
	Clock        func() time.Time
}

// Now returns the dispatch clock, defaulting to the wall clock in UTC.
func (mc ModuleContext) Now() time.Time {
	if mc.Clock != nil {
		return mc.Clock()
	}
	return time.Now().UTC()
}

// Module is implemented by every builtin security test. Execute must return
// a terminal status even when the module fails internally.
type Module interface {
	Execute(ctx context.Context, mc ModuleContext) domain.ModuleResult
}

// ModuleFunc adapts a plain function to the Module interface.
type ModuleFunc func(ctx context.Context, mc ModuleContext) domain.ModuleResult

// Execute calls f.
func (f ModuleFunc) Execute(ctx context.Context, mc ModuleContext) domain.ModuleResult {
	return f(ctx, mc)
}

// Descriptor is a registered module with its metadata.
type Descriptor struct {
	Module      Module
	Description string
}

// Entry is one row of List output.
type Entry struct {
	Name       string
	Descriptor Descriptor
}

// Registry maps module names to implementations. It is populated at
// startup and read-only afterwards.
type Registry struct {
	modules map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]Descriptor{}}
}

// Register stores the module under name. Empty names and nil modules are ignored.
func (r *Registry) Register(name string, desc Descriptor) {
	if name == "" || desc.Module == nil {
		return
	}
	r.modules[name] = desc
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Module, error) {
	desc, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return desc.Module, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.modules[name]
	return ok
}

// List returns the registered names in lexicographic order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns the registered modules sorted by name.
func (r *Registry) Entries() []Entry {
	names := r.List()
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		out = append(out, Entry{Name: name, Descriptor: r.modules[name]})
	}
	return out
}

var registry = NewRegistry()

// Default returns the process-wide registry filled by modules.Init.
func Default() *Registry { return registry }

// Register stores the module in the process-wide registry.
func Register(name string, desc Descriptor) { registry.Register(name, desc) }

// Lookup returns the module from the process-wide registry.
func Lookup(name string) (Module, error) { return registry.Lookup(name) }

// List returns the names in the process-wide registry.
func List() []string { return registry.List() }

// Entries returns the process-wide registry contents.
func Entries() []Entry { return registry.Entries() }

// CheckScope returns the error result every module reports when asked to run
// with an empty allowlist. ok is true when the allowlist is usable.
func CheckScope(mc ModuleContext) (result domain.ModuleResult, ok bool) {
	if len(mc.Allowlist) > 0 {
		return domain.ModuleResult{}, true
	}
	return domain.NewResult(mc.ModuleID, domain.StatusError, mc.Now(),
		map[string]any{"error": "empty allowlist"},
		"scope_allowlist must not be empty"), false
}
