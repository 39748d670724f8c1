package pgcmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/edvin/pgbackup/internal/model"
)

// CertPaths locates the TLS materials of a connection on disk.
type CertPaths struct {
	RootCert   string
	ClientCert string
	ClientKey  string
}

// WriteCerts stores the connection's PEM materials under dir/<connection id>
// with owner-only permissions. Missing materials produce empty paths.
func WriteCerts(dir string, c model.Connection) (CertPaths, error) {
	var paths CertPaths
	if c.SSLCertificate == "" && c.SSLClientCertificate == "" && c.SSLClientCertificateKey == "" {
		return paths, nil
	}

	connDir := filepath.Join(dir, c.ID)
	if err := os.MkdirAll(connDir, 0o700); err != nil {
		return paths, fmt.Errorf("create cert directory: %w", err)
	}

	write := func(name, pem string) (string, error) {
		if pem == "" {
			return "", nil
		}
		p := filepath.Join(connDir, name)
		if err := os.WriteFile(p, []byte(pem), 0o600); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		return p, nil
	}

	var err error
	if paths.RootCert, err = write("ca.pem", c.SSLCertificate); err != nil {
		return paths, err
	}
	if paths.ClientCert, err = write("cert.pem", c.SSLClientCertificate); err != nil {
		return paths, err
	}
	if paths.ClientKey, err = write("key.pem", c.SSLClientCertificateKey); err != nil {
		return paths, err
	}
	return paths, nil
}

// Env returns the complete environment for a client program connecting
// through c. dbName overrides the connection's database when non-empty.
func Env(c model.Connection, certs CertPaths, dbName string) map[string]string {
	if dbName == "" {
		dbName = c.DBName
	}
	env := map[string]string{
		"PGHOST":     c.HostOrDefault(),
		"PGPORT":     strconv.Itoa(c.PortOrDefault()),
		"PGDATABASE": dbName,
		"PGUSER":     c.User,
	}
	if c.Password != "" {
		env["PGPASSWORD"] = c.Password
	}
	if c.SSLMode != "" {
		env["PGSSLMODE"] = c.SSLMode
	}
	if certs.ClientCert != "" {
		env["PGSSLCERT"] = certs.ClientCert
	}
	if certs.ClientKey != "" {
		env["PGSSLKEY"] = certs.ClientKey
	}
	if certs.RootCert != "" {
		env["PGSSLROOTCERT"] = certs.RootCert
	}
	return env
}
