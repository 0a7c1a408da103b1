package api

import "net/http"

// MemberCheckHandler handles POST /company/members/check.
// Invite flows call it before adding a seat.
func (s *Server) MemberCheckHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.companyAdmin(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.checker.CheckUserLimit(r.Context(), profile.CompanyID))
}
