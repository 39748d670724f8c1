package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/platform"
)

// APIKeys manages hashed API keys.
type APIKeys struct {
	db DB
}

func NewAPIKeys(db DB) *APIKeys {
	return &APIKeys{db: db}
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Create generates a key and returns it in raw form exactly once.
func (s *APIKeys) Create(ctx context.Context, name string, scopes []string) (*model.APIKey, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := "pgb_" + hex.EncodeToString(raw)
	key, err := s.CreateWithRawKey(ctx, name, rawKey, scopes)
	if err != nil {
		return nil, "", err
	}
	return key, rawKey, nil
}

// CreateWithRawKey stores a caller-chosen key, for well-known dev keys.
func (s *APIKeys) CreateWithRawKey(ctx context.Context, name, rawKey string, scopes []string) (*model.APIKey, error) {
	if len(rawKey) < 12 {
		return nil, fmt.Errorf("api key must be at least 12 characters")
	}
	if scopes == nil {
		scopes = []string{"*"}
	}
	k := &model.APIKey{ID: platform.NewID(), Name: name, KeyPrefix: rawKey[:12], Scopes: scopes}
	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at)
		 VALUES ($1, $2, $3, $4, $5, now()) RETURNING created_at`,
		k.ID, k.Name, hashKey(rawKey), k.KeyPrefix, k.Scopes,
	).Scan(&k.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	return k, nil
}

// Authenticate resolves a raw key to its non-revoked record.
func (s *APIKeys) Authenticate(ctx context.Context, rawKey string) (*model.APIKey, error) {
	var k model.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, name, key_prefix, scopes, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
		hashKey(rawKey),
	).Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.Scopes, &k.CreatedAt)
	if err != nil {
		return nil, notFound(err, "api key")
	}
	return &k, nil
}

func (s *APIKeys) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return affected(tag, err, "revoke api key "+id, fmt.Errorf("api key %s: %w", id, ErrNotFound))
}
