package store

import (
	"context"
	"fmt"

	"github.com/edvin/pgbackup/internal/crypto"
	"github.com/edvin/pgbackup/internal/model"
)

// Credentials manages object storage credentials. Secret keys are sealed
// at rest.
type Credentials struct {
	db      DB
	secrets *crypto.Sealer
}

func NewCredentials(db DB, secrets *crypto.Sealer) *Credentials {
	return &Credentials{db: db, secrets: secrets}
}

func (s *Credentials) Create(ctx context.Context, c *model.Credential) error {
	if c.Type == "" {
		c.Type = model.CredentialTypeS3
	}
	secret, err := s.secrets.Seal(c.KeySecret)
	if err != nil {
		return fmt.Errorf("seal credential secret: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO credentials (type, bucket, region, key_id, key_secret, endpoint, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 RETURNING id, created_at`,
		c.Type, c.Bucket, c.Region, c.KeyID, secret, c.Endpoint,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *Credentials) GetCredential(ctx context.Context, id int64) (*model.Credential, error) {
	var c model.Credential
	err := s.db.QueryRow(ctx,
		`SELECT id, type, bucket, region, key_id, key_secret, endpoint, created_at FROM credentials WHERE id = $1`, id,
	).Scan(&c.ID, &c.Type, &c.Bucket, &c.Region, &c.KeyID, &c.KeySecret, &c.Endpoint, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("credential %d", id))
	}
	if c.KeySecret, err = s.secrets.Open(c.KeySecret); err != nil {
		return nil, fmt.Errorf("credential %d secret: %w", id, err)
	}
	return &c, nil
}
