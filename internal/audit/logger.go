package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Store is the slice of storage the audit logger needs.
type Store interface {
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error)
}

// Logger writes append-only audit entries.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger creates an audit Logger.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Record stamps and persists entry. Details must carry metadata only, never key material.
func (l *Logger) Record(ctx context.Context, entry *models.AuditEntry) error {
	if entry.Action == "" {
		return fmt.Errorf("audit entry without action")
	}
	entry.CreatedAt = l.now().UTC()
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if err := l.store.WriteAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("writing audit entry %s: %w", entry.Action, err)
	}
	return nil
}

// Log records entry and only logs a failure. Use it where an audit write
// must not change the outcome of the request.
func (l *Logger) Log(ctx context.Context, entry *models.AuditEntry) {
	if err := l.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("company_id", entry.CompanyID).Msg("audit write failed")
	}
}

// Query retrieves paginated audit log entries for one company.
func (l *Logger) Query(ctx context.Context, companyID string, filter storage.AuditFilter) ([]*models.AuditEntry, error) {
	filter.CompanyID = companyID
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return l.store.QueryAuditLog(ctx, filter)
}
