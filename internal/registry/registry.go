// Package registry holds the read-only catalogue of logical model ids.
package registry

import (
	"strings"

	"github.com/org/chatgateway/pkg/models"
)

// Entry maps a logical model id to its provider and upstream model id.
// Entries without a Label are routing aliases and are not offered in the model picker.
type Entry struct {
	ID        string          `json:"id"`
	Provider  models.Provider `json:"provider"`
	WireModel string          `json:"-"`
	Label     string          `json:"label"`
	Badge     string          `json:"badge,omitempty"`
}

// Registry is an immutable ordered model table.
type Registry struct {
	entries []Entry
	byID    map[string]int
}

// New builds a Registry from entries. Later duplicates of an id are ignored.
func New(entries []Entry) *Registry {
	r := &Registry{byID: make(map[string]int, len(entries))}
	for _, e := range entries {
		if _, dup := r.byID[e.ID]; dup {
			continue
		}
		r.byID[e.ID] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r
}

// Default returns the built-in catalogue.
func Default() *Registry {
	return New([]Entry{
		{ID: "openai:gpt-4o", Provider: models.ProviderOpenAI, WireModel: "gpt-4o", Label: "GPT-4o (OpenAI)", Badge: "Top Tier"},
		{ID: "openai:gpt-4o-mini", Provider: models.ProviderOpenAI, WireModel: "gpt-4o-mini", Label: "GPT-4o Mini", Badge: "Fast"},
		{ID: "anthropic:sonnet", Provider: models.ProviderAnthropic, WireModel: "claude-3-5-sonnet-20241022", Label: "Claude 3.5 Sonnet", Badge: "Best for Logic"},
		{ID: "anthropic:haiku", Provider: models.ProviderAnthropic, WireModel: "claude-3-haiku-20240307", Label: "Claude 3.5 Haiku", Badge: "Fast"},
		{ID: "deepseek:chat", Provider: models.ProviderDeepSeek, WireModel: "deepseek-chat", Label: "DeepSeek V3", Badge: "Open / Fast"},
		{ID: "deepseek:r1", Provider: models.ProviderDeepSeek, WireModel: "deepseek-reasoner", Label: "DeepSeek R1", Badge: "Reasoning"},

		{ID: "openai:o1", Provider: models.ProviderOpenAI, WireModel: "o1-preview"},
		{ID: "openai:o1-mini", Provider: models.ProviderOpenAI, WireModel: "o1-mini"},
		{ID: "anthropic:opus", Provider: models.ProviderAnthropic, WireModel: "claude-3-opus-20240229"},
		{ID: "deepseek:coder", Provider: models.ProviderDeepSeek, WireModel: "deepseek-coder"},
	})
}

// ProviderOf returns the provider prefix of a logical model id.
func ProviderOf(id string) (models.Provider, bool) {
	p, _, ok := strings.Cut(id, ":")
	if !ok || p == "" {
		return "", false
	}
	return models.Provider(p), true
}

// Resolve maps a logical id to the upstream model id. Unregistered ids
// pass through with the provider prefix stripped, so new upstream models
// can be referenced before they are catalogued.
func (r *Registry) Resolve(id string) string {
	if i, ok := r.byID[id]; ok {
		return r.entries[i].WireModel
	}
	if _, rest, ok := strings.Cut(id, ":"); ok {
		return rest
	}
	return id
}

// Describe returns the entry for id.
func (r *Registry) Describe(id string) (Entry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// ListByProvider returns the ids registered for provider, in catalogue order.
func (r *Registry) ListByProvider(p models.Provider) []string {
	var ids []string
	for _, e := range r.entries {
		if e.Provider == p {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Entries returns a copy of the whole table.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Selectable returns the entries shown in the model picker.
func (r *Registry) Selectable() []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Label != "" {
			out = append(out, e)
		}
	}
	return out
}
