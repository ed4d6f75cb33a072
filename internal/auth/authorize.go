package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tasktrail.io/internal/obs"
)

// DenyReason identifies which check rejected a request.
type DenyReason string

const (
	DenyNone                  DenyReason = ""
	DenyNotMember             DenyReason = "not_member_of_organization"
	DenyMissingPermission     DenyReason = "missing_permission"
	DenyResourceOutsideOrg    DenyReason = "resource_not_in_organization"
	DenyInsufficientOwnership DenyReason = "insufficient_ownership"
	DenyMissingRole           DenyReason = "missing_role"
)

// Message is the human readable form of the reason.
func (r DenyReason) Message() string {
	switch r {
	case DenyNotMember:
		return "not member of organization"
	case DenyMissingPermission:
		return "missing permission"
	case DenyResourceOutsideOrg:
		return "resource not in organization"
	case DenyInsufficientOwnership:
		return "insufficient ownership/role for operation"
	case DenyMissingRole:
		return "missing required role"
	default:
		return ""
	}
}

// Operation is the kind of access being requested.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpList   Operation = "list"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Resource carries the fields of an already-fetched resource that the
// authorization checks need.
type Resource struct {
	OwnerUserID    string
	OrganizationID string
}

// Request is the input to Authorize. Resource is nil for collection-level
// operations.
type Request struct {
	Principal      Principal
	OrganizationID string
	Permission     Permission
	Operation      Operation
	Resource       *Resource
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative decision.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Err returns nil for an allowed decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError reports a typed denial. errors.Is(err, ErrForbidden) holds.
type DeniedError struct {
	Reason DenyReason
}

func (e *DeniedError) Error() string {
	return "forbidden: " + e.Reason.Message()
}

func (e *DeniedError) Unwrap() error { return ErrForbidden }

// DenyReasonOf extracts the reason from err, if it is a denial.
func DenyReasonOf(err error) (DenyReason, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return DenyNone, false
}

// Engine decides whether a principal may perform an operation. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	resolver *Resolver
}

// NewEngine returns an engine that resolves permissions through resolver.
func NewEngine(resolver *Resolver) *Engine {
	return &Engine{resolver: resolver}
}

// Authorize runs the checks in order and stops at the first failure:
// organization membership, permission, resource organization, ownership.
// Only a store failure during live permission resolution yields an error.
func (e *Engine) Authorize(ctx context.Context, req Request) (Decision, error) {
	ctx, span := obs.Tracer().Start(ctx, "authz.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("authz.permission", string(req.Permission)),
		attribute.String("authz.operation", string(req.Operation)),
		attribute.String("authz.organization", req.OrganizationID),
	)

	decision, source, err := e.decide(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "permission resolution failed")
		return Decision{}, err
	}
	span.SetAttributes(
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.reason", string(decision.Reason)),
		attribute.String("authz.source", source),
	)
	record(string(req.Permission), decision)
	return decision, nil
}

func (e *Engine) decide(ctx context.Context, req Request) (Decision, string, error) {
	p := req.Principal
	claimed := strings.TrimSpace(req.OrganizationID)
	if claimed == "" || p.OrganizationID != claimed {
		return Deny(DenyNotMember), "", nil
	}

	p, source, err := e.resolver.Resolve(ctx, p)
	if err != nil {
		return Decision{}, source, fmt.Errorf("resolve permissions: %w", err)
	}
	if !p.HasPermission(req.Permission) {
		return Deny(DenyMissingPermission), source, nil
	}

	if req.Resource == nil {
		return Allow, source, nil
	}
	if req.Resource.OrganizationID != claimed {
		return Deny(DenyResourceOutsideOrg), source, nil
	}

	if !ownershipSatisfied(p, req.Operation, req.Resource) {
		return Deny(DenyInsufficientOwnership), source, nil
	}
	return Allow, source, nil
}

// ownershipSatisfied applies the per-operation override rule. Admins may edit
// but not delete other users' resources.
func ownershipSatisfied(p Principal, op Operation, res *Resource) bool {
	isCreator := res.OwnerUserID != "" && res.OwnerUserID == p.UserID
	switch op {
	case OpUpdate:
		return isCreator || p.HasAnyRole(RoleAdmin, RoleOwner)
	case OpDelete:
		return isCreator || p.HasRole(RoleOwner)
	default:
		return true
	}
}

// RequireAnyRole allows the principal when it holds at least one of roles.
// Roles come from the same strategy as permissions, so a token without
// claims is checked against live assignments.
func (e *Engine) RequireAnyRole(ctx context.Context, p Principal, roles ...Role) (Decision, error) {
	ctx, span := obs.Tracer().Start(ctx, "authz.RequireAnyRole")
	defer span.End()

	p, source, err := e.resolver.Resolve(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "role resolution failed")
		return Decision{}, fmt.Errorf("resolve roles: %w", err)
	}
	decision := Deny(DenyMissingRole)
	if p.HasAnyRole(roles...) {
		decision = Allow
	}
	span.SetAttributes(
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.source", source),
	)
	record("role", decision)
	return decision, nil
}

// RequireOrganization denies a principal acting on another tenant.
func (e *Engine) RequireOrganization(p Principal, organizationID string) Decision {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" || p.OrganizationID != organizationID {
		return Deny(DenyNotMember)
	}
	return Allow
}

func record(permission string, d Decision) {
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
	}
	obs.AuthzDecisions.WithLabelValues(permission, outcome, string(d.Reason)).Inc()
}
