package store

import (
	"context"
	"fmt"

	"github.com/edvin/pgbackup/internal/crypto"
	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/platform"
)

const connectionColumns = `id, name, db_host, db_port, db_name, db_user, db_pass, db_ssl,
	ssl_certificate, ssl_client_certificate, ssl_client_certificate_key, created_at`

// Connections manages the databases that can be backed up or restored into.
// The password and client key are sealed at rest.
type Connections struct {
	db      DB
	secrets *crypto.Sealer
}

func NewConnections(db DB, secrets *crypto.Sealer) *Connections {
	return &Connections{db: db, secrets: secrets}
}

func (s *Connections) Create(ctx context.Context, c *model.Connection) error {
	if c.ID == "" {
		c.ID = platform.NewID()
	}
	password, err := s.secrets.Seal(c.Password)
	if err != nil {
		return fmt.Errorf("seal connection password: %w", err)
	}
	clientKey, err := s.secrets.Seal(c.SSLClientCertificateKey)
	if err != nil {
		return fmt.Errorf("seal client key: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO connections (id, name, db_host, db_port, db_name, db_user, db_pass, db_ssl,
		   ssl_certificate, ssl_client_certificate, ssl_client_certificate_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		 RETURNING created_at`,
		c.ID, c.Name, c.Host, c.Port, c.DBName, c.User, password, c.SSLMode,
		c.SSLCertificate, c.SSLClientCertificate, clientKey,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

// GetConnection returns a connection including its secrets.
func (s *Connections) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	var c model.Connection
	err := s.db.QueryRow(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.Host, &c.Port, &c.DBName, &c.User, &c.Password, &c.SSLMode,
		&c.SSLCertificate, &c.SSLClientCertificate, &c.SSLClientCertificateKey, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "connection "+id)
	}
	if err := s.open(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Connections) open(c *model.Connection) error {
	var err error
	if c.Password, err = s.secrets.Open(c.Password); err != nil {
		return fmt.Errorf("connection %s password: %w", c.ID, err)
	}
	if c.SSLClientCertificateKey, err = s.secrets.Open(c.SSLClientCertificateKey); err != nil {
		return fmt.Errorf("connection %s client key: %w", c.ID, err)
	}
	return nil
}

func (s *Connections) List(ctx context.Context) ([]model.Connection, error) {
	rows, err := s.db.Query(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []model.Connection
	for rows.Next() {
		var c model.Connection
		if err := rows.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.DBName, &c.User, &c.Password, &c.SSLMode,
			&c.SSLCertificate, &c.SSLClientCertificate, &c.SSLClientCertificateKey, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		if err := s.open(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}
