package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"

	"tasktrail.io/internal/audit"
)

// AuditStore appends to and queries the audit_logs table. Rows are never
// updated or deleted.
type AuditStore struct {
	s *Store
}

// Audit returns the audit view of the store.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

var (
	_ audit.Store   = (*AuditStore)(nil)
	_ audit.Counter = (*AuditStore)(nil)
)

func (as *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	q, err := as.s.conn(ctx)
	if err != nil {
		return err
	}
	var changes any
	if e.Changes != nil {
		raw, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
		changes = raw
	}
	stmt, args, err := as.s.builder.Insert("audit_logs").
		Columns("id", "action", "user_id", "organization_id", "resource", "resource_id", "occurred_at", "changes").
		Values(e.ID, string(e.Action), e.UserID, nullIfEmpty(e.OrganizationID), string(e.Resource), e.ResourceID, e.Timestamp, changes).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (as *AuditStore) Query(ctx context.Context, aq audit.Query) ([]audit.Entry, error) {
	q, err := as.s.conn(ctx)
	if err != nil {
		return nil, err
	}
	sel := as.s.builder.
		Select("id", "action", "user_id", "coalesce(organization_id, '')", "resource", "resource_id", "occurred_at", "changes").
		From("audit_logs")
	if aq.OrganizationID != "" {
		sel = sel.Where(squirrel.Eq{"organization_id": aq.OrganizationID})
	}
	if aq.UserID != "" {
		sel = sel.Where(squirrel.Eq{"user_id": aq.UserID})
	}
	if aq.Resource != "" {
		sel = sel.Where(squirrel.Eq{"resource": string(aq.Resource)})
	}
	if aq.ResourceID != "" {
		sel = sel.Where(squirrel.Eq{"resource_id": aq.ResourceID})
	}
	if aq.Action != "" {
		sel = sel.Where(squirrel.Eq{"action": string(aq.Action)})
	}
	sel = sel.OrderBy("occurred_at DESC", "id DESC")
	if aq.Limit > 0 {
		sel = sel.Limit(uint64(aq.Limit))
	}
	if aq.Offset > 0 {
		sel = sel.Offset(uint64(aq.Offset))
	}
	stmt, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query sql: %w", err)
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := []audit.Entry{}
	for rows.Next() {
		var (
			e        audit.Entry
			action   string
			resource string
			raw      []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.UserID, &e.OrganizationID, &resource, &e.ResourceID, &e.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		e.Resource = audit.ResourceType(resource)
		e.Timestamp = e.Timestamp.UTC()
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode changes for %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

// CountByOrganization reports the number of entries per organization. Entries
// without an organization are counted under the empty key.
func (as *AuditStore) CountByOrganization(ctx context.Context) (map[string]int64, error) {
	q, err := as.s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		select coalesce(organization_id, ''), count(*)
		from audit_logs
		group by organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("count audit entries: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			org string
			n   int64
		)
		if err := rows.Scan(&org, &n); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		out[org] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit counts: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
