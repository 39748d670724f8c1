package backupctl

import "github.com/edvin/pgbackup/internal/model"

// Definition is the YAML file read by "backupctl apply".
type Definition struct {
	APIURL      string          `yaml:"api_url"`
	APIKey      string          `yaml:"api_key"`
	Connections []ConnectionDef `yaml:"connections"`
}

type ConnectionDef struct {
	Name     string     `yaml:"name"`
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	DBName   string     `yaml:"db_name"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	SSLMode  string     `yaml:"ssl_mode"`
	Policy   *PolicyDef `yaml:"policy"`
}

type PolicyDef struct {
	Enabled      *bool           `yaml:"enabled"`
	Frequency    model.Frequency `yaml:"frequency"`
	Hour         *int            `yaml:"hour"`
	DayOfWeek    *int            `yaml:"day_of_week"`
	DayOfMonth   *int            `yaml:"day_of_month"`
	KeepLast     *int            `yaml:"keep_last"`
	CredentialID *int64          `yaml:"credential_id"`
	Dump         DumpDef         `yaml:"dump"`
}

type DumpDef struct {
	Command          model.DumpCommand `yaml:"command"`
	Format           string            `yaml:"format"`
	Create           bool              `yaml:"create"`
	NoOwner          bool              `yaml:"no_owner"`
	ExcludeSchema    string            `yaml:"exclude_schema"`
	CompressionLevel *int              `yaml:"compression_level"`
}

// Options converts the YAML form, defaulting to pg_dump.
func (d DumpDef) Options() model.DumpOptions {
	cmd := d.Command
	if cmd == "" {
		cmd = model.CommandPGDump
	}
	return model.DumpOptions{
		Command:          cmd,
		Format:           d.Format,
		Create:           d.Create,
		NoOwner:          d.NoOwner,
		ExcludeSchema:    d.ExcludeSchema,
		CompressionLevel: d.CompressionLevel,
	}
}
