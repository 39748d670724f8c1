// Package pgcmd renders command lines and environments for the PostgreSQL
// client programs. Connection secrets only ever travel in the environment so
// they never show up in the process list.
package pgcmd

import (
	"strconv"
	"strings"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/procpipe"
)

// Program names.
const (
	PGDump    = "pg_dump"
	PGDumpAll = "pg_dumpall"
	PGRestore = "pg_restore"
	PSQL      = "psql"
)

type flag struct {
	on   bool
	args []string
}

func gated(flags ...flag) []string {
	var out []string
	for _, f := range flags {
		if f.on {
			out = append(out, f.args...)
		}
	}
	return out
}

func on(b bool, args ...string) flag { return flag{on: b, args: args} }

func intFlag(name string, v *int) flag {
	if v == nil {
		return flag{}
	}
	return flag{on: true, args: []string{name, strconv.Itoa(*v)}}
}

// DumpProgram returns the program that produces o.
func DumpProgram(o model.DumpOptions) string {
	if o.IsDumpAll() {
		return PGDumpAll
	}
	return PGDump
}

// DumpArgs renders the argument vector for o. Unset options never appear.
// pg_dumpall is pointed at dbName for its initial connection; pg_dump takes
// the database from PGDATABASE.
func DumpArgs(o model.DumpOptions, dbName string) []string {
	if o.IsDumpAll() {
		return gated(
			on(dbName != "", "--database="+dbName),
			on(o.Clean, "--clean"),
			on(o.IfExists, "--if-exists"),
			on(o.GlobalsOnly, "--globals-only"),
			on(o.RolesOnly, "--roles-only"),
			on(o.DataOnly, "--data-only"),
			on(o.SchemaOnly, "--schema-only"),
			on(o.Encoding != "", "--encoding", o.Encoding),
			on(true, "-v"),
		)
	}
	return gated(
		on(o.Format != "", "--format", o.Format),
		on(o.Clean, "--clean"),
		on(o.Create, "--create"),
		on(o.NoOwner, "--no-owner"),
		on(o.IfExists, "--if-exists"),
		on(o.DataOnly, "--data-only"),
		on(o.Encoding != "", "--encoding", o.Encoding),
		on(o.SchemaOnly, "--schema-only"),
		on(o.ExcludeSchema != "", "--exclude-schema", o.ExcludeSchema),
		intFlag("--compress", o.CompressionLevel),
		on(true, "-v"),
	)
}

// RestoreProgram returns the program that replays a dump with o.
func RestoreProgram(o model.RestoreOptions) string {
	if o.UsesShell() {
		return PSQL
	}
	return PGRestore
}

// RestoreArgs renders the argument vector for o. An empty inputFile means
// the dump arrives on standard input.
func RestoreArgs(o model.RestoreOptions, dbName, inputFile string) []string {
	if o.UsesShell() {
		return gated(
			on(inputFile != "", "--file", inputFile),
		)
	}
	return gated(
		// pg_restore writes a script to stdout unless a database is named.
		on(true, "--dbname="+dbName),
		on(true, "-w"),
		on(o.Clean, "--clean"),
		on(o.Create, "--create"),
		on(o.NoOwner, "--no-owner"),
		on(o.Format != "", "--format", o.Format),
		on(o.DataOnly, "--data-only"),
		on(o.IfExists, "--if-exists"),
		on(o.ExcludeSchema != "", "--exclude-schema", o.ExcludeSchema),
		intFlag("--jobs", o.NumberOfJobs),
		on(true, "-v"),
		on(inputFile != "", inputFile),
	)
}

// secretEnv lists variables left out of persisted command strings.
var secretEnv = map[string]bool{"PGPASSWORD": true}

// CommandString renders c as a single line for audit logs, with secrets
// removed.
func CommandString(c procpipe.Command) string {
	var b strings.Builder
	for _, kv := range c.EnvList() {
		k, v, _ := strings.Cut(kv, "=")
		if secretEnv[k] {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v))
		b.WriteByte(' ')
	}
	b.WriteString(c.Path)
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}
