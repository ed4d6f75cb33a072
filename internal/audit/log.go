package audit

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"tasktrail.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// LogEntry writes one structured line describing a durable audit entry.
func LogEntry(ctx context.Context, e Entry) {
	fields := logrus.Fields{
		"type":            "audit",
		"audit_id":        e.ID,
		"action":          string(e.Action),
		"user_id":         e.UserID,
		"organization_id": e.OrganizationID,
		"resource":        string(e.Resource),
		"resource_id":     e.ResourceID,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields["request_id"] = rid
	}
	if len(e.Changes) > 0 {
		keys := make([]string, 0, len(e.Changes))
		for k := range e.Changes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields["changed"] = keys
	}
	obs.Logger().WithFields(fields).Info("audit entry recorded")
}

// LogDenial writes one structured line for a rejected authorization.
func LogDenial(ctx context.Context, userID, organizationID, permission, reason string) {
	fields := logrus.Fields{
		"type":            "authz",
		"decision":        "deny",
		"user_id":         userID,
		"organization_id": organizationID,
		"permission":      permission,
		"reason":          reason,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields["request_id"] = rid
	}
	obs.Logger().WithFields(fields).Warn("authorization denied")
}
