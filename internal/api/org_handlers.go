package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/database/models"
)

// orgResponse is the JSON response for an org registration.
type orgResponse struct {
	ID                int64  `json:"id"`
	OrgID             string `json:"org_id"`
	Name              string `json:"name"`
	ProviderAccountID string `json:"provider_account_id"`
	TelephonyEnabled  bool   `json:"telephony_enabled"`
	CreatedAt         string `json:"created_at"`
}

func toOrgResponse(o *models.Org) orgResponse {
	return orgResponse{
		ID:                o.ID,
		OrgID:             o.OrgID,
		Name:              o.Name,
		ProviderAccountID: o.ProviderAccountID,
		TelephonyEnabled:  o.TelephonyEnabled,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
	}
}

// createOrgRequest is the body for registering an org.
type createOrgRequest struct {
	OrgID             string `json:"org_id"`
	Name              string `json:"name"`
	ProviderAccountID string `json:"provider_account_id"`
	TelephonyEnabled  bool   `json:"telephony_enabled"`
}

// handleCreateOrg registers a provider-account-to-tenant mapping.
// Webhook deliveries only apply to registered, enabled orgs.
func (s *Server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateOrgID("org_id", req.OrgID); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("provider_account_id", req.ProviderAccountID, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()
	org := &models.Org{
		OrgID:             req.OrgID,
		Name:              req.Name,
		ProviderAccountID: req.ProviderAccountID,
		TelephonyEnabled:  req.TelephonyEnabled,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		writeDomainError(w, err)
		return
	}

	s.auditSink.Record(ctx, audit.Entry{
		OrgID:        org.OrgID,
		Actor:        operatorActor(ctx),
		Action:       "org_created",
		ResourceType: "org",
		ResourceID:   org.OrgID,
	})

	writeJSON(w, http.StatusCreated, toOrgResponse(org))
}

// handleListOrgs returns all registered orgs.
func (s *Server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.orgs.List(r.Context())
	if err != nil {
		slog.Error("list orgs: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]orgResponse, len(orgs))
	for i := range orgs {
		items[i] = toOrgResponse(&orgs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
