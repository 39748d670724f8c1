package model

import (
	"errors"
	"fmt"
	"time"
)

// Destination describes where a backup artifact lives.
type Destination string

const (
	DestinationLocal           Destination = "Local"
	DestinationCloud           Destination = "Cloud"
	DestinationTemporaryStream Destination = "None (temp stream)"
)

// Initiator labels distinguishing how a job was started.
const (
	InitiatorManual          = "manual_backup"
	InitiatorAutomatic       = "automatic_backups"
	InitiatorRestoreFromFile = "manual_restore_from_file"
)

// Content types of stored artifacts.
const (
	ContentTypeSQL     = "text/sql"
	ContentTypeArchive = "application/gzip"
)

// BackupJob is one persisted dump, plus the state of the latest restore run
// made from it.
type BackupJob struct {
	ID           string      `json:"id"`
	ConnectionID string      `json:"connection_id"`
	CredentialID *int64      `json:"credential_id,omitempty"`
	Destination  Destination `json:"destination"`
	Initiator    string      `json:"initiator"`
	Options      DumpOptions `json:"options"`
	Status       JobStatus   `json:"status"`
	ContentType  string      `json:"content_type"`
	DBSizeBytes  int64       `json:"db_size_bytes"`
	SizeBytes    *int64      `json:"size_bytes,omitempty"`
	DumpCommand  string      `json:"dump_command"`
	DumpLogs     string      `json:"dump_logs,omitempty"`

	LocalFilepath *string    `json:"local_filepath,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUpdated   time.Time  `json:"last_updated"`
	UploadedAt    *time.Time `json:"uploaded_at,omitempty"`

	RestoreOptions *RestoreOptions `json:"restore_options,omitempty"`
	RestoreStatus  *JobStatus      `json:"restore_status,omitempty"`
	RestoreCommand string          `json:"restore_command,omitempty"`
	RestoreLogs    string          `json:"restore_logs,omitempty"`
	RestoreStart   *time.Time      `json:"restore_start,omitempty"`
	RestoreEnd     *time.Time      `json:"restore_end,omitempty"`
}

// DumpCommand selects the dump program.
type DumpCommand string

const (
	CommandPGDump    DumpCommand = "pg_dump"
	CommandPGDumpAll DumpCommand = "pg_dumpall"
)

// DumpOptions is tagged by Command. Flags belonging to the other program
// must be left unset.
type DumpOptions struct {
	Command DumpCommand `json:"command" validate:"required,oneof=pg_dump pg_dumpall"`

	// pg_dump only
	Format           string `json:"format,omitempty" validate:"omitempty,oneof=p t c"`
	Create           bool   `json:"create,omitempty"`
	NoOwner          bool   `json:"noOwner,omitempty"`
	ExcludeSchema    string `json:"excludeSchema,omitempty"`
	CompressionLevel *int   `json:"compressionLevel,omitempty" validate:"omitempty,min=0,max=9"`
	NumberOfJobs     *int   `json:"numberOfJobs,omitempty" validate:"omitempty,min=1"`

	// pg_dumpall only
	GlobalsOnly bool `json:"globalsOnly,omitempty"`
	RolesOnly   bool `json:"rolesOnly,omitempty"`

	Clean      bool   `json:"clean,omitempty"`
	IfExists   bool   `json:"ifExists,omitempty"`
	DataOnly   bool   `json:"dataOnly,omitempty"`
	SchemaOnly bool   `json:"schemaOnly,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	KeepLogs   bool   `json:"keepLogs,omitempty"`
}

var (
	ErrUnknownDumpCommand    = errors.New("unknown dump command")
	ErrDataAndSchemaOnly     = errors.New("dataOnly and schemaOnly are mutually exclusive")
	ErrNewDBNameWithCreate   = errors.New("cannot use newDbName together with create: --create restores into the database named inside the dump")
	ErrUnknownRestoreCommand = errors.New("unknown restore command")
	// pg_dump runs parallel jobs only for the directory format, which
	// cannot be written to a stream.
	ErrParallelDump = errors.New("numberOfJobs is not supported for streamed dumps: pg_dump --jobs requires the directory format")
)

// IsDumpAll reports whether the whole cluster is dumped.
func (o DumpOptions) IsDumpAll() bool { return o.Command == CommandPGDumpAll }

// ContentType is text/sql for plain output, an archive type otherwise.
func (o DumpOptions) ContentType() string {
	if o.IsDumpAll() || o.Format == "p" {
		return ContentTypeSQL
	}
	return ContentTypeArchive
}

// FileExtension matches ContentType.
func (o DumpOptions) FileExtension() string {
	if o.ContentType() == ContentTypeSQL {
		return "sql"
	}
	return "dump"
}

// Validate checks the mutually exclusive flag sets of the two dump programs.
func (o DumpOptions) Validate() error {
	if o.DataOnly && o.SchemaOnly {
		return ErrDataAndSchemaOnly
	}
	switch o.Command {
	case CommandPGDump:
		if o.GlobalsOnly || o.RolesOnly {
			return fmt.Errorf("globalsOnly/rolesOnly are only valid for %s", CommandPGDumpAll)
		}
		switch o.Format {
		case "", "p", "t", "c":
		default:
			return fmt.Errorf("unsupported dump format %q", o.Format)
		}
		if o.NumberOfJobs != nil {
			return ErrParallelDump
		}
	case CommandPGDumpAll:
		if o.Format != "" || o.Create || o.NoOwner || o.ExcludeSchema != "" ||
			o.CompressionLevel != nil || o.NumberOfJobs != nil {
			return fmt.Errorf("format/create/noOwner/excludeSchema/compressionLevel/numberOfJobs are only valid for %s", CommandPGDump)
		}
		if o.GlobalsOnly && o.RolesOnly {
			return errors.New("globalsOnly and rolesOnly are mutually exclusive")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDumpCommand, o.Command)
	}
	if o.CompressionLevel != nil && (*o.CompressionLevel < 0 || *o.CompressionLevel > 9) {
		return fmt.Errorf("compressionLevel must be between 0 and 9")
	}
	return nil
}

// RestoreCommand selects the restore dialect.
type RestoreCommand string

const (
	CommandPGRestore RestoreCommand = "pg_restore"
	CommandPSQL      RestoreCommand = "psql"
)

// RestoreOptions configures a restore run. The psql dialect replays plain SQL
// and accepts none of the archive flags.
type RestoreOptions struct {
	Command       RestoreCommand `json:"command" validate:"required,oneof=pg_restore psql"`
	Format        string         `json:"format,omitempty" validate:"omitempty,oneof=p t c"`
	Clean         bool           `json:"clean,omitempty"`
	Create        bool           `json:"create,omitempty"`
	NoOwner       bool           `json:"noOwner,omitempty"`
	DataOnly      bool           `json:"dataOnly,omitempty"`
	IfExists      bool           `json:"ifExists,omitempty"`
	ExcludeSchema string         `json:"excludeSchema,omitempty"`
	NumberOfJobs  *int           `json:"numberOfJobs,omitempty" validate:"omitempty,min=1"`
	NewDBName     string         `json:"newDbName,omitempty" validate:"omitempty,dbname"`
	KeepLogs      bool           `json:"keepLogs,omitempty"`

	// TerminateConnections drops other sessions on the target database
	// before a clean restore so DROP statements are not blocked.
	TerminateConnections bool `json:"terminateConnections,omitempty"`
}

// UsesShell reports whether the interactive shell replays the dump.
func (o RestoreOptions) UsesShell() bool {
	return o.Command == CommandPSQL || o.Format == "p"
}

// Validate enforces the naming and dialect rules.
func (o RestoreOptions) Validate() error {
	if o.Command != CommandPGRestore && o.Command != CommandPSQL {
		return fmt.Errorf("%w: %q", ErrUnknownRestoreCommand, o.Command)
	}
	if o.NewDBName != "" && o.Create {
		return ErrNewDBNameWithCreate
	}
	if o.UsesShell() {
		if o.Clean || o.Create || o.NoOwner || o.DataOnly || o.IfExists ||
			o.ExcludeSchema != "" || o.NumberOfJobs != nil {
			return errors.New("archive restore flags cannot be used with the psql dialect")
		}
	}
	if o.NumberOfJobs != nil && *o.NumberOfJobs < 1 {
		return fmt.Errorf("numberOfJobs must be positive")
	}
	return nil
}

// DefaultRestoreOptions mirrors what a restore of a pushed custom-format file uses.
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{Command: CommandPGRestore, Format: "c", Clean: true}
}
