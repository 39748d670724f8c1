package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/pgbackup/internal/model"
)

const policyColumns = `connection_id, enabled, frequency, hour, day_of_week, day_of_month,
	keep_last, credential_id, dump_options, err, updated_at`

// Policies manages automatic backup policies, one per connection.
type Policies struct {
	db DB
}

func NewPolicies(db DB) *Policies {
	return &Policies{db: db}
}

func scanPolicy(row pgx.Row) (*model.BackupPolicy, error) {
	var p model.BackupPolicy
	err := row.Scan(&p.ConnectionID, &p.Enabled, &p.Frequency, &p.Hour, &p.DayOfWeek, &p.DayOfMonth,
		&p.KeepLast, &p.CredentialID, &p.DumpOptions, &p.Err, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Policies) Get(ctx context.Context, connectionID string) (*model.BackupPolicy, error) {
	p, err := scanPolicy(s.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM backup_policies WHERE connection_id = $1`, connectionID))
	if err != nil {
		return nil, notFound(err, "backup policy for connection "+connectionID)
	}
	return p, nil
}

// Upsert creates or replaces a policy. The stored capacity error is reset.
func (s *Policies) Upsert(ctx context.Context, p *model.BackupPolicy) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO backup_policies (connection_id, enabled, frequency, hour, day_of_week, day_of_month,
		   keep_last, credential_id, dump_options, err, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, now())
		 ON CONFLICT (connection_id) DO UPDATE SET
		   enabled = EXCLUDED.enabled, frequency = EXCLUDED.frequency, hour = EXCLUDED.hour,
		   day_of_week = EXCLUDED.day_of_week, day_of_month = EXCLUDED.day_of_month,
		   keep_last = EXCLUDED.keep_last, credential_id = EXCLUDED.credential_id,
		   dump_options = EXCLUDED.dump_options, err = NULL, updated_at = now()
		 RETURNING updated_at`,
		p.ConnectionID, p.Enabled, p.Frequency, p.Hour, p.DayOfWeek, p.DayOfMonth,
		p.KeepLast, p.CredentialID, p.DumpOptions,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert backup policy: %w", err)
	}
	p.Err = nil
	return nil
}

// ListEnabled returns every enabled policy.
func (s *Policies) ListEnabled(ctx context.Context) ([]model.BackupPolicy, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+policyColumns+` FROM backup_policies WHERE enabled ORDER BY connection_id`)
	if err != nil {
		return nil, fmt.Errorf("list backup policies: %w", err)
	}
	defer rows.Close()

	var out []model.BackupPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup policy: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup policies: %w", err)
	}
	return out, nil
}

// SetErr stores or clears (msg == nil) the policy's last scheduling error.
// Rows already holding msg are not rewritten.
func (s *Policies) SetErr(ctx context.Context, connectionID string, msg *string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_policies SET err = $2, updated_at = now()
		 WHERE connection_id = $1 AND err IS DISTINCT FROM $2`, connectionID, msg)
	if err != nil {
		return fmt.Errorf("set backup policy error: %w", err)
	}
	return nil
}
