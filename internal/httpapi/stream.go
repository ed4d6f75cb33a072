package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/auth"
)

// Stream sends the caller's organization's new audit entries as Server-Sent
// Events.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r)
	if !ok {
		return
	}
	if a.feed == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	d, err := a.engine.Authorize(r.Context(), auth.Request{
		Principal:      p,
		OrganizationID: p.OrganizationID,
		Permission:     auth.PermViewAuditLog,
		Operation:      auth.OpList,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !d.Allowed {
		audit.LogDenial(r.Context(), p.UserID, p.OrganizationID, string(auth.PermViewAuditLog), string(d.Reason))
		respondErr(w, r, d.Err())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.feed.Subscribe(ctx, p.OrganizationID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for entry := range ch {
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: audit\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
