package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/auth"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 100
)

// handleTaskAuditLog pages through the caller's organization's entries. Only
// OWNER and ADMIN may read it.
func (a *API) handleTaskAuditLog(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	if err := a.requireRole(r.Context(), p, auth.RoleOwner, auth.RoleAdmin); err != nil {
		respondErr(w, r, err)
		return
	}
	limit, offset, err := parsePage(r.URL.Query())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	entries, err := a.recorder.QueryPage(r.Context(), p.OrganizationID, limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var f audit.Filter
	if raw := strings.TrimSpace(q.Get("resource")); raw != "" {
		rt, ok := audit.ParseResourceType(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown resource type %q", raw))
			return
		}
		f.Resource = rt
	}
	if raw := strings.TrimSpace(q.Get("action")); raw != "" {
		action, ok := audit.ParseAction(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown action %q", raw))
			return
		}
		f.Action = action
	}
	f.UserID = strings.TrimSpace(q.Get("userId"))

	entries, err := a.recorder.Query(r.Context(), p.OrganizationID, f)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleResourceHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	rt, ok := audit.ParseResourceType(vars["resource"])
	if !ok {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown resource type %q", vars["resource"]))
		return
	}
	entries, err := a.recorder.QueryByResource(r.Context(), rt, vars["resourceId"])
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inOrganization(entries, p.OrganizationID))
}

// handleUserHistory exposes the unscoped per-user query to owners, trimmed to
// the owner's organization.
func (a *API) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	if err := a.requireRole(r.Context(), p, auth.RoleOwner); err != nil {
		respondErr(w, r, err)
		return
	}
	entries, err := a.recorder.QueryByUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inOrganization(entries, p.OrganizationID))
}

func (a *API) requireRole(ctx context.Context, p auth.Principal, roles ...auth.Role) error {
	d, err := a.engine.RequireAnyRole(ctx, p, roles...)
	if err != nil {
		return err
	}
	if !d.Allowed {
		audit.LogDenial(ctx, p.UserID, p.OrganizationID, "role", string(d.Reason))
	}
	return d.Err()
}

func inOrganization(entries []audit.Entry, organizationID string) []audit.Entry {
	out := make([]audit.Entry, 0, len(entries))
	for _, e := range entries {
		if e.OrganizationID == organizationID {
			out = append(out, e)
		}
	}
	return out
}

func parsePage(q url.Values) (int, int, error) {
	limit := defaultAuditLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, fmt.Errorf("%w: Limit must be a positive number", audit.ErrInvalidInput)
		}
		if v > maxAuditLimit {
			return 0, 0, fmt.Errorf("%w: Limit cannot exceed %d", audit.ErrInvalidInput, maxAuditLimit)
		}
		limit = v
	}
	offset := 0
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("%w: Offset must be a non-negative number", audit.ErrInvalidInput)
		}
		offset = v
	}
	return limit, offset, nil
}
