package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/org/chatgateway/internal/entitlement"
	"github.com/org/chatgateway/internal/storage"
	"github.com/org/chatgateway/pkg/models"
)

// AuditLogHandler handles GET /audit-log
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.callerProfile(w, r)
	if !ok {
		return
	}
	if !entitlement.CanManageCompany(profile.Role) {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	q := r.URL.Query()

	// Master admins see every company unless they ask for one
	companyID := profile.CompanyID
	if profile.IsMaster() {
		companyID = q.Get("company_id")
	} else if companyID == "" {
		writeError(w, http.StatusNotFound, "Empresa não encontrada")
		return
	}

	filter := storage.AuditFilter{
		Action: q.Get("action"),
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n > 0 {
			filter.Offset = n
		}
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = &t
	}

	entries, err := s.auditor.Query(r.Context(), companyID, filter)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
