// internal/llm/engine.go
package llm

import (
	"sort"
	"strings"
)

// EngineTemplate never calls a provider.
const EngineTemplate = "template"

// Engine maps a client-facing engine id to a provider and model.
type Engine struct {
	ID       string `json:"id"`
	Provider string `json:"provider,omitempty"` // empty for the template engine
	Model    string `json:"model,omitempty"`    // empty means the provider default
}

var engines = map[string]Engine{
	"gpt-5":        {ID: "gpt-5", Provider: "openai", Model: "gpt-5"},
	"gpt-5-mini":   {ID: "gpt-5-mini", Provider: "openai", Model: "gpt-5-mini"},
	"claude":       {ID: "claude", Provider: "anthropic"},
	"openrouter":   {ID: "openrouter", Provider: "openrouter"},
	EngineTemplate: {ID: EngineTemplate},
}

// LookupEngine resolves an engine id, case-insensitively.
func LookupEngine(id string) (Engine, bool) {
	e, ok := engines[strings.ToLower(strings.TrimSpace(id))]
	return e, ok
}

// EngineIDs lists the supported engine ids, sorted.
func EngineIDs() []string {
	ids := make([]string, 0, len(engines))
	for id := range engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProviderSet holds the initialized providers for this process.
type ProviderSet struct {
	providers map[string]Provider
}

// NewProviderSet initializes every provider in configs. Providers that fail
// to initialize are skipped and reported in the returned error slice.
func NewProviderSet(configs map[string]map[string]string) (*ProviderSet, []error) {
	set := &ProviderSet{providers: make(map[string]Provider)}
	var errs []error
	for name, cfg := range configs {
		p, err := GetProvider(name, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set.providers[name] = p
	}
	return set, errs
}

// NewStaticProviderSet wraps already-built providers.
func NewStaticProviderSet(providers map[string]Provider) *ProviderSet {
	set := &ProviderSet{providers: make(map[string]Provider, len(providers))}
	for name, p := range providers {
		set.providers[name] = p
	}
	return set
}

// Get returns the provider registered under name.
func (s *ProviderSet) Get(name string) (Provider, bool) {
	if s == nil || name == "" {
		return nil, false
	}
	p, ok := s.providers[name]
	return p, ok
}

// Names lists the available providers, sorted.
func (s *ProviderSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
