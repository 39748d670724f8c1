package request

import "github.com/edvin/pgbackup/internal/model"

// PutPolicy replaces the automatic backup policy of a connection.
type PutPolicy struct {
	Enabled      bool              `json:"enabled"`
	Frequency    model.Frequency   `json:"frequency" validate:"required,oneof=hourly daily weekly monthly"`
	Hour         *int              `json:"hour" validate:"omitempty,min=0,max=23"`
	DayOfWeek    *int              `json:"dayOfWeek" validate:"omitempty,min=1,max=7"`
	DayOfMonth   *int              `json:"dayOfMonth" validate:"omitempty,min=1,max=31"`
	KeepLast     *int              `json:"keepLast" validate:"omitempty,min=1"`
	CredentialID *int64            `json:"credential_id" validate:"omitempty,min=1"`
	DumpOptions  model.DumpOptions `json:"dump_options"`
}

// Policy builds the stored policy for connectionID.
func (p PutPolicy) Policy(connectionID string) *model.BackupPolicy {
	return &model.BackupPolicy{
		ConnectionID: connectionID,
		Enabled:      p.Enabled,
		Frequency:    p.Frequency,
		Hour:         p.Hour,
		DayOfWeek:    p.DayOfWeek,
		DayOfMonth:   p.DayOfMonth,
		KeepLast:     p.KeepLast,
		CredentialID: p.CredentialID,
		DumpOptions:  p.DumpOptions,
	}
}
