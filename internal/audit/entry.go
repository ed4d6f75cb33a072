package audit

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("audit: invalid input")
	ErrNotFound     = errors.New("audit: not found")
)

// Action is the verb an entry records.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ParseAction validates and normalizes an action name.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return a, true
	}
	return "", false
}

// ResourceType names the kind of resource an entry is about.
type ResourceType string

const (
	ResourceTask         ResourceType = "Task"
	ResourceUser         ResourceType = "User"
	ResourceOrganization ResourceType = "Organization"
)

// ParseResourceType validates a resource type. Matching ignores case.
func ParseResourceType(s string) (ResourceType, bool) {
	s = strings.TrimSpace(s)
	for _, rt := range []ResourceType{ResourceTask, ResourceUser, ResourceOrganization} {
		if strings.EqualFold(s, string(rt)) {
			return rt, true
		}
	}
	return "", false
}

// Changes is the structured payload attached to an entry. Values are
// JSON-compatible.
type Changes map[string]any

// Change is the per-field value pair recorded for updates.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Entry is one immutable audit record.
type Entry struct {
	ID             string       `json:"id"`
	Action         Action       `json:"action"`
	UserID         string       `json:"userId"`
	OrganizationID string       `json:"organizationId,omitempty"`
	Resource       ResourceType `json:"resource"`
	ResourceID     string       `json:"resourceId"`
	Timestamp      time.Time    `json:"timestamp"`
	Changes        Changes      `json:"changes,omitempty"`
}

// Event is the caller-supplied part of an entry. Identifier and timestamp are
// assigned by the recorder.
type Event struct {
	Action         Action
	ActorUserID    string
	OrganizationID string
	Resource       ResourceType
	ResourceID     string
	Changes        Changes
}
