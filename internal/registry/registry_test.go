package registry

import (
	"testing"

	"github.com/org/chatgateway/pkg/models"
)

func TestResolveRegistered(t *testing.T) {
	r := Default()
	cases := map[string]string{
		"openai:gpt-4o":      "gpt-4o",
		"openai:o1":          "o1-preview",
		"anthropic:sonnet":   "claude-3-5-sonnet-20241022",
		"anthropic:opus":     "claude-3-opus-20240229",
		"deepseek:r1":        "deepseek-reasoner",
		"deepseek:chat":      "deepseek-chat",
		"anthropic:haiku":    "claude-3-haiku-20240307",
		"openai:gpt-4o-mini": "gpt-4o-mini",
	}
	for id, want := range cases {
		if got := r.Resolve(id); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestResolveUnknownStripsPrefix(t *testing.T) {
	r := Default()
	if got := r.Resolve("openai:some-new-model"); got != "some-new-model" {
		t.Errorf("Resolve = %q, want %q", got, "some-new-model")
	}
	if got := r.Resolve("anthropic:claude-x:beta"); got != "claude-x:beta" {
		t.Errorf("Resolve = %q, want only the first prefix stripped", got)
	}
	if got := r.Resolve("bare"); got != "bare" {
		t.Errorf("Resolve = %q, want %q", got, "bare")
	}
}

func TestDescribe(t *testing.T) {
	r := Default()
	e, ok := r.Describe("deepseek:chat")
	if !ok {
		t.Fatal("expected deepseek:chat to be registered")
	}
	if e.Label != "DeepSeek V3" || e.Badge != "Open / Fast" || e.Provider != models.ProviderDeepSeek {
		t.Errorf("unexpected entry %+v", e)
	}
	if _, ok := r.Describe("openai:nope"); ok {
		t.Error("expected unknown id to be absent")
	}
}

func TestListByProvider(t *testing.T) {
	r := Default()
	got := r.ListByProvider(models.ProviderAnthropic)
	want := []string{"anthropic:sonnet", "anthropic:haiku", "anthropic:opus"}
	if len(got) != len(want) {
		t.Fatalf("ListByProvider = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListByProvider[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if ids := r.ListByProvider("google"); len(ids) != 0 {
		t.Errorf("expected no google models, got %v", ids)
	}
}

func TestSelectableSkipsAliases(t *testing.T) {
	r := Default()
	sel := r.Selectable()
	if len(sel) != 6 {
		t.Fatalf("expected 6 selectable entries, got %d", len(sel))
	}
	for _, e := range sel {
		if e.ID == "anthropic:opus" || e.ID == "openai:o1" {
			t.Errorf("alias %q should not be selectable", e.ID)
		}
	}
}

func TestNewIgnoresDuplicates(t *testing.T) {
	r := New([]Entry{
		{ID: "openai:x", Provider: models.ProviderOpenAI, WireModel: "first"},
		{ID: "openai:x", Provider: models.ProviderOpenAI, WireModel: "second"},
	})
	if got := r.Resolve("openai:x"); got != "first" {
		t.Errorf("Resolve = %q, want %q", got, "first")
	}
	if len(r.Entries()) != 1 {
		t.Errorf("expected 1 entry, got %d", len(r.Entries()))
	}
}

func TestProviderOf(t *testing.T) {
	if p, ok := ProviderOf("google:gemini"); !ok || p != "google" {
		t.Errorf("ProviderOf = %q, %v", p, ok)
	}
	if _, ok := ProviderOf("gpt-4o"); ok {
		t.Error("expected no provider for unprefixed id")
	}
	if _, ok := ProviderOf(":gpt-4o"); ok {
		t.Error("expected no provider for empty prefix")
	}
}
