// Package secret manages the per-company provider API keys kept encrypted at rest.
package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/org/chatgateway/internal/audit"
	"github.com/org/chatgateway/internal/entitlement"
	"github.com/org/chatgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrForbidden        = errors.New("only company administrators can manage API keys")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrInvalidKeyFormat = errors.New("invalid key format")
	ErrNoCompany        = errors.New("profile has no company")
)

// keyPrefixes is the expected plaintext prefix per provider.
var keyPrefixes = map[models.Provider]string{
	models.ProviderOpenAI:    "sk-",
	models.ProviderAnthropic: "sk-ant-",
	models.ProviderDeepSeek:  "sk-",
}

// Store is the persistence the manager needs.
type Store interface {
	GetCompany(ctx context.Context, companyID string) (*models.Company, error)
	SetCompanyKey(ctx context.Context, companyID string, provider models.Provider, secret string) error
}

// Sealer encrypts keys and derives display fingerprints.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(secret string) (string, error)
	Fingerprint(plaintext string) string
}

// KeyStatus describes one provider slot without revealing the key.
type KeyStatus struct {
	Provider    models.Provider `json:"provider"`
	Configured  bool            `json:"configured"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	// Readable is false when a stored key no longer decrypts with the current vault key.
	Readable bool `json:"readable"`
}

// KeyManager stores, removes and reports company provider keys.
type KeyManager struct {
	store   Store
	vault   Sealer
	auditor *audit.Logger
}

// NewKeyManager creates a KeyManager. auditor may be nil.
func NewKeyManager(store Store, vault Sealer, auditor *audit.Logger) *KeyManager {
	return &KeyManager{store: store, vault: vault, auditor: auditor}
}

// ValidateKey checks that key looks like a key for provider.
func ValidateKey(provider models.Provider, key string) error {
	prefix, ok := keyPrefixes[provider]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if !strings.HasPrefix(key, prefix) || len(key) <= len(prefix) {
		return fmt.Errorf("%w: %s keys start with %q", ErrInvalidKeyFormat, provider, prefix)
	}
	return nil
}

func authorize(actor *models.Profile) error {
	if actor == nil || !entitlement.CanManageCompany(actor.Role) {
		return ErrForbidden
	}
	if actor.CompanyID == "" {
		return ErrNoCompany
	}
	return nil
}

// Set validates, encrypts and stores key for the actor's company.
func (m *KeyManager) Set(ctx context.Context, actor *models.Profile, provider models.Provider, key string) (*KeyStatus, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if err := ValidateKey(provider, key); err != nil {
		return nil, err
	}

	sealed, err := m.vault.Encrypt(key)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s key: %w", provider, err)
	}
	if err := m.store.SetCompanyKey(ctx, actor.CompanyID, provider, sealed); err != nil {
		return nil, fmt.Errorf("storing %s key: %w", provider, err)
	}

	fp := m.vault.Fingerprint(key)
	log.Info().
		Str("company_id", actor.CompanyID).
		Str("provider", string(provider)).
		Str("key_fp", fp).
		Msg("company api key updated")
	m.record(ctx, actor, models.AuditActionKeyUpdated, map[string]any{"provider": provider, "key_fp": fp})

	return &KeyStatus{Provider: provider, Configured: true, Fingerprint: fp, Readable: true}, nil
}

// Delete removes the stored key for provider.
func (m *KeyManager) Delete(ctx context.Context, actor *models.Profile, provider models.Provider) error {
	if err := authorize(actor); err != nil {
		return err
	}
	if _, ok := keyPrefixes[provider]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if err := m.store.SetCompanyKey(ctx, actor.CompanyID, provider, ""); err != nil {
		return fmt.Errorf("removing %s key: %w", provider, err)
	}
	m.record(ctx, actor, models.AuditActionKeyDeleted, map[string]any{"provider": provider})
	return nil
}

// Status reports every known provider slot for the company.
func (m *KeyManager) Status(ctx context.Context, companyID string) ([]KeyStatus, error) {
	company, err := m.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("loading company: %w", err)
	}

	out := make([]KeyStatus, 0, len(models.KnownProviders))
	for _, p := range models.KnownProviders {
		st := KeyStatus{Provider: p}
		if sealed := company.Keys[p]; sealed != "" {
			st.Configured = true
			if key, err := m.vault.Decrypt(sealed); err == nil {
				st.Readable = true
				st.Fingerprint = m.vault.Fingerprint(key)
			} else {
				log.Warn().Err(err).Str("company_id", companyID).Str("provider", string(p)).
					Msg("stored api key does not decrypt")
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *KeyManager) record(ctx context.Context, actor *models.Profile, action string, details map[string]any) {
	if m.auditor == nil {
		return
	}
	m.auditor.Log(ctx, &models.AuditEntry{
		CompanyID: actor.CompanyID,
		UserID:    actor.ID,
		Action:    action,
		Details:   details,
	})
}
