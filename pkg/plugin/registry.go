// Package plugin provides a registry of speech capability providers
// (recognizers and synthesizers). Provider packages register themselves from
// init(); the CLI picks one of each by name.
package plugin

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Plugin kinds.
const (
	KindSTT = "stt"
	KindTTS = "tts"
)

// Factory creates a provider from its options. The returned value is a
// stt.Recognizer for KindSTT and a tts.Synthesizer for KindTTS.
type Factory func(cfg map[string]any) (any, error)

// Plugin is a registered provider and what `sous plugin list` shows for it.
type Plugin struct {
	Kind        string
	Name        string // e.g. "console", "openai"
	Factory     Factory
	Description string
	Version     string
	Config      map[string]any // option key → meaning
}

type key struct{ kind, name string }

// Registry maps kind and name to a provider.
type Registry struct {
	mu      sync.RWMutex
	plugins map[key]*Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[key]*Plugin)}
}

var globalRegistry = NewRegistry()

// Register adds a provider to the global registry. It panics on a duplicate
// kind and name, so a clash shows up at startup.
func Register(kind, name string, factory Factory) {
	globalRegistry.Register(kind, name, factory)
}

// RegisterWithMetadata adds a described provider to the global registry.
func RegisterWithMetadata(p *Plugin) {
	globalRegistry.RegisterWithMetadata(p)
}

// Get looks up a factory in the global registry.
func Get(kind, name string) (Factory, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns the global registry's providers of one kind, or all of them
// when kind is empty.
func List(kind string) []*Plugin {
	return globalRegistry.List(kind)
}

// ListKinds returns the kinds present in the global registry.
func ListKinds() []string {
	return globalRegistry.ListKinds()
}

func (r *Registry) Register(kind, name string, factory Factory) {
	r.RegisterWithMetadata(&Plugin{Kind: kind, Name: name, Factory: factory})
}

func (r *Registry) RegisterWithMetadata(p *Plugin) {
	switch {
	case p.Kind == "":
		panic("plugin kind cannot be empty")
	case p.Name == "":
		panic("plugin name cannot be empty")
	case p.Factory == nil:
		panic(fmt.Sprintf("plugin %s/%s has no factory", p.Kind, p.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{p.Kind, p.Name}
	if existing, ok := r.plugins[k]; ok {
		panic(fmt.Sprintf("plugin %s/%s registered twice (versions %q and %q)",
			p.Kind, p.Name, existing.Version, p.Version))
	}
	r.plugins[k] = p
}

func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[key{kind, name}]
	if !ok {
		return nil, false
	}
	return p.Factory, true
}

// List returns providers sorted by kind, then name.
func (r *Registry) List(kind string) []*Plugin {
	r.mu.RLock()
	var out []*Plugin
	for k, p := range r.plugins {
		if kind == "" || k.kind == kind {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Plugin) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Name, b.Name))
	})
	return out
}

func (r *Registry) ListKinds() []string {
	r.mu.RLock()
	var kinds []string
	for k := range r.plugins {
		if !slices.Contains(kinds, k.kind) {
			kinds = append(kinds, k.kind)
		}
	}
	r.mu.RUnlock()

	slices.Sort(kinds)
	return kinds
}

// Clear drops every provider. Tests use it to start from an empty registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.plugins)
}
