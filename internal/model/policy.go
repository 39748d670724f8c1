package model

import "time"

// Frequency of automatic backups.
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// BackupPolicy configures automatic backups for one connection.
type BackupPolicy struct {
	ConnectionID string    `json:"connection_id"`
	Enabled      bool      `json:"enabled"`
	Frequency    Frequency `json:"frequency" validate:"required,oneof=hourly daily weekly monthly"`
	// Hour of day (0-23) at or after which daily+ backups may run.
	Hour *int `json:"hour,omitempty" validate:"omitempty,min=0,max=23"`
	// DayOfWeek 1 (Monday) .. 7 (Sunday).
	DayOfWeek *int `json:"dayOfWeek,omitempty" validate:"omitempty,min=1,max=7"`
	// DayOfMonth 1..31, clamped to the last day of shorter months.
	DayOfMonth   *int        `json:"dayOfMonth,omitempty" validate:"omitempty,min=1,max=31"`
	KeepLast     *int        `json:"keepLast,omitempty" validate:"omitempty,min=1"`
	CredentialID *int64      `json:"credential_id,omitempty"`
	DumpOptions  DumpOptions `json:"dump_options"`
	Err          *string     `json:"err,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsLocal reports whether backups go to the local filesystem.
func (p BackupPolicy) IsLocal() bool { return p.CredentialID == nil }
