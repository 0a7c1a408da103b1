package modelfactory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/org/chatgateway/internal/crypto"
	"github.com/org/chatgateway/internal/llm"
	"github.com/org/chatgateway/internal/registry"
	"github.com/org/chatgateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyRecorder is a fake upstream that remembers the credential of the last call.
type keyRecorder struct {
	mu   sync.Mutex
	last string
}

func (k *keyRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	k.mu.Lock()
	k.last = r.Header.Get("x-api-key")
	if auth := r.Header.Get("Authorization"); auth != "" {
		k.last = strings.TrimPrefix(auth, "Bearer ")
	}
	k.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/messages") {
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
		return
	}
	fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
}

func (k *keyRecorder) keyUsedBy(t *testing.T, m *Model) string {
	t.Helper()
	_, _, err := m.Complete(context.Background(), llm.Request{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.last
}

func newTestFactory(t *testing.T, fallback map[models.Provider]string) (*Factory, *crypto.Vault, *keyRecorder) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	vault, err := crypto.NewVault(key)
	require.NoError(t, err)

	rec := &keyRecorder{}
	server := httptest.NewServer(rec)
	t.Cleanup(server.Close)
	base := map[models.Provider]string{}
	for _, p := range models.KnownProviders {
		base[p] = server.URL
	}
	return New(vault, registry.Default(), Config{FallbackKeys: fallback, BaseURLs: base, HTTPClient: server.Client()}), vault, rec
}

func encrypt(t *testing.T, v *crypto.Vault, s string) string {
	t.Helper()
	out, err := v.Encrypt(s)
	require.NoError(t, err)
	return out
}

func TestCredentialPrecedenceTemporaryWins(t *testing.T) {
	f, vault, rec := newTestFactory(t, map[models.Provider]string{models.ProviderOpenAI: "sk-env"})
	m, err := f.CreateModel(Options{
		ModelID:      "openai:gpt-4o",
		CompanyKeys:  models.CompanyKeySet{models.ProviderOpenAI: encrypt(t, vault, "sk-company")},
		IsPrivileged: true,
		TemporaryKey: "sk-temp",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceTemporary, m.Source)
	assert.Equal(t, "sk-temp", rec.keyUsedBy(t, m))
}

func TestCredentialPrecedenceCompanyBeforeFallback(t *testing.T) {
	f, vault, rec := newTestFactory(t, map[models.Provider]string{models.ProviderAnthropic: "sk-ant-env"})
	m, err := f.CreateModel(Options{
		ModelID:      "anthropic:sonnet",
		CompanyKeys:  models.CompanyKeySet{models.ProviderAnthropic: encrypt(t, vault, "sk-ant-company")},
		IsPrivileged: true,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceCompany, m.Source)
	assert.Equal(t, "sk-ant-company", rec.keyUsedBy(t, m))
	assert.Equal(t, "claude-3-5-sonnet-20241022", m.WireModel)
	assert.Equal(t, models.ProviderAnthropic, m.Provider)
	assert.Equal(t, "anthropic:sonnet", m.ID)
}

func TestFallbackOnlyWhenPrivileged(t *testing.T) {
	f, _, rec := newTestFactory(t, map[models.Provider]string{models.ProviderDeepSeek: "sk-ds-env"})

	m, err := f.CreateModel(Options{ModelID: "deepseek:r1", IsPrivileged: true})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, m.Source)
	assert.Equal(t, "deepseek-reasoner", m.WireModel)
	assert.Equal(t, "sk-ds-env", rec.keyUsedBy(t, m))

	_, err = f.CreateModel(Options{ModelID: "deepseek:r1"})
	var missing *MissingCredentialError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, models.ProviderDeepSeek, missing.Provider)
	assert.Equal(t, "⚠️ Chave DeepSeek não configurada.", err.Error())
}

func TestMissingCredentialNamesProvider(t *testing.T) {
	f, _, _ := newTestFactory(t, nil)
	for _, tc := range []struct {
		model string
		name  string
	}{
		{"openai:gpt-4o-mini", "OpenAI"},
		{"anthropic:haiku", "Anthropic"},
		{"deepseek:chat", "DeepSeek"},
	} {
		_, err := f.CreateModel(Options{ModelID: tc.model, IsPrivileged: true, TemporaryKey: "   "})
		var missing *MissingCredentialError
		require.ErrorAs(t, err, &missing, tc.model)
		assert.Contains(t, err.Error(), "Chave "+tc.name)
	}
}

func TestUnsupportedProvider(t *testing.T) {
	f, _, _ := newTestFactory(t, nil)
	for _, id := range []string{"google:gemini-pro", "gpt-4o", ""} {
		_, err := f.CreateModel(Options{ModelID: id, TemporaryKey: "sk-x"})
		assert.True(t, errors.Is(err, ErrUnsupportedProvider), "%q: %v", id, err)
	}
}

func TestCorruptStoredKey(t *testing.T) {
	f, vault, _ := newTestFactory(t, map[models.Provider]string{models.ProviderOpenAI: "sk-env"})

	_, err := f.CreateModel(Options{
		ModelID:      "openai:gpt-4o",
		CompanyKeys:  models.CompanyKeySet{models.ProviderOpenAI: "not-a-secret"},
		IsPrivileged: true,
	})
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.ErrorIs(t, err, crypto.ErrMalformedSecret)

	good := encrypt(t, vault, "sk-real")
	tampered := good[:len(good)-1] + flipHex(good[len(good)-1:])
	_, err = f.CreateModel(Options{
		ModelID:     "openai:gpt-4o",
		CompanyKeys: models.CompanyKeySet{models.ProviderOpenAI: tampered},
	})
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailure)
	assert.False(t, strings.Contains(err.Error(), "sk-real"))
}

func TestUnknownAliasPassesThrough(t *testing.T) {
	f, _, _ := newTestFactory(t, nil)
	m, err := f.CreateModel(Options{ModelID: "openai:gpt-5-preview", TemporaryKey: "sk-x"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-preview", m.WireModel)
}

func flipHex(s string) string {
	if s == "0" {
		return "1"
	}
	return "0"
}
