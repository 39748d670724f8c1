package store

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/pgbackup/internal/model"
)

// Audit manages rows of the audit_logs table.
type Audit struct {
	db DB
}

func NewAudit(db DB) *Audit {
	return &Audit{db: db}
}

// AuditFilter narrows List. Zero fields match everything.
type AuditFilter struct {
	ResourceType string
	Method       string
	Since        time.Time
}

func (s *Audit) Insert(ctx context.Context, e *model.AuditEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_logs (api_key_id, method, path, resource_type, resource_id, status_code, request_body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		e.APIKeyID, e.Method, e.Path, e.ResourceType, e.ResourceID, e.StatusCode, e.RequestBody,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// List returns entries newest first. cursor is the id of the last entry of
// the previous page, or 0.
func (s *Audit) List(ctx context.Context, f AuditFilter, limit int, cursor int64) ([]model.AuditEntry, bool, error) {
	query := `SELECT id, api_key_id, method, path, resource_type, resource_id, status_code, request_body, created_at
	          FROM audit_logs WHERE true`
	args := []any{}
	argIdx := 1

	if f.ResourceType != "" {
		query += fmt.Sprintf(` AND resource_type = $%d`, argIdx)
		args = append(args, f.ResourceType)
		argIdx++
	}
	if f.Method != "" {
		query += fmt.Sprintf(` AND method = $%d`, argIdx)
		args = append(args, f.Method)
		argIdx++
	}
	if !f.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, f.Since)
		argIdx++
	}
	if cursor > 0 {
		query += fmt.Sprintf(` AND id < $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.APIKeyID, &e.Method, &e.Path, &e.ResourceType, &e.ResourceID,
			&e.StatusCode, &e.RequestBody, &e.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate audit logs: %w", err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return entries, hasMore, nil
}
