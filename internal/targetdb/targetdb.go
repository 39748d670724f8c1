// Package targetdb runs administrative statements against the databases
// being backed up or restored into.
package targetdb

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/pgcmd"
	"github.com/edvin/pgbackup/internal/platform"
)

// Conn is the subset of *pgx.Conn used here.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Backend is another session connected to a database.
type Backend struct {
	PID             int32  `json:"pid"`
	User            string `json:"user"`
	ApplicationName string `json:"application_name"`
	State           string `json:"state"`
}

// Admin opens a short-lived connection per operation.
type Admin struct {
	certDir string
	connect func(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error)
}

func NewAdmin(certDir string) *Admin {
	return &Admin{
		certDir: certDir,
		connect: func(ctx context.Context, cfg *pgx.ConnConfig) (Conn, error) {
			return pgx.ConnectConfig(ctx, cfg)
		},
	}
}

// ConnString renders c as a URL. dbName overrides the connection's database
// when non-empty. TLS materials are referenced by file path.
func ConnString(c model.Connection, certs pgcmd.CertPaths, dbName string) string {
	if dbName == "" {
		dbName = c.DBName
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.HostOrDefault(), strconv.Itoa(c.PortOrDefault())),
		Path:   "/" + dbName,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if certs.RootCert != "" {
		q.Set("sslrootcert", certs.RootCert)
	}
	if certs.ClientCert != "" {
		q.Set("sslcert", certs.ClientCert)
	}
	if certs.ClientKey != "" {
		q.Set("sslkey", certs.ClientKey)
	}
	q.Set("application_name", "pgbackup")
	u.RawQuery = q.Encode()
	return u.String()
}

func (a *Admin) open(ctx context.Context, c model.Connection, dbName string) (Conn, error) {
	certs, err := pgcmd.WriteCerts(a.certDir, c)
	if err != nil {
		return nil, err
	}
	cfg, err := pgx.ParseConfig(ConnString(c, certs, dbName))
	if err != nil {
		return nil, fmt.Errorf("parse connection %s: %w", c.ID, err)
	}
	conn, err := a.connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.ID, err)
	}
	return conn, nil
}

func (a *Admin) with(ctx context.Context, c model.Connection, dbName string, fn func(Conn) error) error {
	conn, err := a.open(ctx, c, dbName)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return fn(conn)
}

// DatabaseSize returns the on-disk size of the connection's database.
func (a *Admin) DatabaseSize(ctx context.Context, c model.Connection) (int64, error) {
	var size int64
	err := a.with(ctx, c, "", func(conn Conn) error {
		return conn.QueryRow(ctx, `SELECT pg_database_size(current_database())`).Scan(&size)
	})
	if err != nil {
		return 0, fmt.Errorf("get database size: %w", err)
	}
	return size, nil
}

// ClusterSize sums the sizes of every connectable database.
func (a *Admin) ClusterSize(ctx context.Context, c model.Connection) (int64, error) {
	var size int64
	err := a.with(ctx, c, "", func(conn Conn) error {
		return conn.QueryRow(ctx,
			`SELECT COALESCE(sum(pg_database_size(datname)), 0)::bigint FROM pg_database WHERE datallowconn`).Scan(&size)
	})
	if err != nil {
		return 0, fmt.Errorf("get cluster size: %w", err)
	}
	return size, nil
}

func (a *Admin) CreateDatabase(ctx context.Context, c model.Connection, name string) error {
	err := a.with(ctx, c, "", func(conn Conn) error {
		_, err := conn.Exec(ctx, `CREATE DATABASE `+pgx.Identifier{name}.Sanitize())
		return err
	})
	if err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// ReloadSchema makes a structural change that schema watchers observe:
// a throwaway view is created and dropped in one transaction.
func (a *Admin) ReloadSchema(ctx context.Context, c model.Connection, dbName string) error {
	view := pgx.Identifier{platform.NewName("pgbackup_reload_")}.Sanitize()
	err := a.with(ctx, c, dbName, func(conn Conn) error {
		_, err := conn.Exec(ctx, `BEGIN; CREATE VIEW `+view+` AS SELECT 1; DROP VIEW `+view+`; COMMIT;`)
		return err
	})
	if err != nil {
		return fmt.Errorf("reload schema: %w", err)
	}
	return nil
}

// Backends lists the other sessions on dbName.
func (a *Admin) Backends(ctx context.Context, c model.Connection, dbName string) ([]Backend, error) {
	var out []Backend
	err := a.with(ctx, c, "", func(conn Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT pid, COALESCE(usename, ''), application_name, COALESCE(state, '')
			 FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()
			 ORDER BY pid`, dbName)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var b Backend
			if err := rows.Scan(&b.PID, &b.User, &b.ApplicationName, &b.State); err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list backends: %w", err)
	}
	return out, nil
}

// TerminateBackends ends the other sessions on dbName and reports how many
// were signalled.
func (a *Admin) TerminateBackends(ctx context.Context, c model.Connection, dbName string) (int, error) {
	var n int
	err := a.with(ctx, c, "", func(conn Conn) error {
		return conn.QueryRow(ctx,
			`SELECT count(*) FILTER (WHERE pg_terminate_backend(pid))::int
			 FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`, dbName).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("terminate backends: %w", err)
	}
	return n, nil
}

// DataDirectory reports the server's data directory.
func (a *Admin) DataDirectory(ctx context.Context, c model.Connection) (string, error) {
	var dir string
	err := a.with(ctx, c, "", func(conn Conn) error {
		return conn.QueryRow(ctx, `SHOW data_directory`).Scan(&dir)
	})
	if err != nil {
		return "", fmt.Errorf("get data directory: %w", err)
	}
	return dir, nil
}
