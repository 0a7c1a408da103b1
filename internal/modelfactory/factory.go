// Package modelfactory turns a logical model id and a set of candidate
// credentials into a ready llm.Client.
package modelfactory

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/org/chatgateway/internal/llm"
	"github.com/org/chatgateway/internal/registry"
	"github.com/org/chatgateway/pkg/models"
)

// ErrUnsupportedProvider is returned for model ids whose prefix names no supported provider.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// MissingCredentialError means no credential tier produced a key for Provider.
// Its message is shown to the user as-is.
type MissingCredentialError struct {
	Provider models.Provider
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("⚠️ Chave %s não configurada.", DisplayName(e.Provider))
}

// CredentialError means the stored key exists but could not be decrypted.
type CredentialError struct {
	Provider models.Provider
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("⚠️ Chave %s inválida. Configure-a novamente nas configurações.", DisplayName(e.Provider))
}

func (e *CredentialError) Unwrap() error { return e.Err }

// CredentialSource records which tier supplied the key.
type CredentialSource string

const (
	SourceTemporary CredentialSource = "temporary"
	SourceCompany   CredentialSource = "company"
	SourceFallback  CredentialSource = "fallback"
)

// DisplayName is the vendor name used in user-facing messages.
func DisplayName(p models.Provider) string {
	switch p {
	case models.ProviderOpenAI:
		return "OpenAI"
	case models.ProviderAnthropic:
		return "Anthropic"
	case models.ProviderDeepSeek:
		return "DeepSeek"
	}
	return string(p)
}

// Decrypter opens stored company keys.
type Decrypter interface {
	Decrypt(secret string) (string, error)
}

// Config holds operator-level settings.
type Config struct {
	// FallbackKeys are operator-owned keys, used only for privileged callers.
	FallbackKeys map[models.Provider]string
	// BaseURLs override upstream endpoints, mostly for tests and proxies.
	BaseURLs   map[models.Provider]string
	HTTPClient *http.Client
}

// Factory builds provider clients. It performs no network I/O.
type Factory struct {
	vault    Decrypter
	registry *registry.Registry
	cfg      Config
}

// New creates a Factory.
func New(vault Decrypter, reg *registry.Registry, cfg Config) *Factory {
	return &Factory{vault: vault, registry: reg, cfg: cfg}
}

// Options describes one model construction.
type Options struct {
	ModelID      string
	CompanyKeys  models.CompanyKeySet
	IsPrivileged bool
	// TemporaryKey is a per-request key; it wins over every stored key.
	TemporaryKey string
}

// Model is a client bound to a logical model id.
type Model struct {
	*llm.Client
	ID     string
	Source CredentialSource
}

// CreateModel resolves provider, credential and upstream model id for opts.ModelID.
func (f *Factory) CreateModel(opts Options) (*Model, error) {
	provider, _ := registry.ProviderOf(opts.ModelID)
	switch provider {
	case models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderDeepSeek:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, opts.ModelID)
	}

	credential, source, err := f.resolveCredential(provider, opts)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(provider, f.registry.Resolve(opts.ModelID), credential,
		llm.WithBaseURL(f.cfg.BaseURLs[provider]),
		llm.WithHTTPClient(f.cfg.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("building %s client: %w", provider, err)
	}
	return &Model{Client: client, ID: opts.ModelID, Source: source}, nil
}

// resolveCredential applies temporary > company > privileged fallback.
func (f *Factory) resolveCredential(provider models.Provider, opts Options) (string, CredentialSource, error) {
	if key := strings.TrimSpace(opts.TemporaryKey); key != "" {
		return key, SourceTemporary, nil
	}
	if secret := opts.CompanyKeys[provider]; secret != "" {
		key, err := f.vault.Decrypt(secret)
		if err != nil {
			return "", "", &CredentialError{Provider: provider, Err: err}
		}
		if key != "" {
			return key, SourceCompany, nil
		}
	}
	if opts.IsPrivileged {
		if key := f.cfg.FallbackKeys[provider]; key != "" {
			return key, SourceFallback, nil
		}
	}
	return "", "", &MissingCredentialError{Provider: provider}
}
