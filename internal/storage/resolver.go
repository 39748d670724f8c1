package storage

import (
	"context"
	"fmt"

	"github.com/edvin/pgbackup/internal/model"
)

// CredentialGetter loads a stored object storage credential.
type CredentialGetter interface {
	GetCredential(ctx context.Context, id int64) (*model.Credential, error)
}

// Resolver maps a job's optional credential to its storage backend: no
// credential means the local filesystem.
type Resolver struct {
	local       *Local
	credentials CredentialGetter
	endpoint    string

	newS3 func(model.Credential, string) Backend
}

func NewResolver(local *Local, credentials CredentialGetter, endpoint string) *Resolver {
	return &Resolver{
		local:       local,
		credentials: credentials,
		endpoint:    endpoint,
		newS3: func(c model.Credential, endpoint string) Backend {
			return NewS3FromCredential(c, endpoint)
		},
	}
}

// Local returns the filesystem backend.
func (r *Resolver) Local() *Local { return r.local }

func (r *Resolver) Resolve(ctx context.Context, credentialID *int64) (Backend, error) {
	if credentialID == nil {
		return r.local, nil
	}
	cred, err := r.credentials.GetCredential(ctx, *credentialID)
	if err != nil {
		return nil, fmt.Errorf("get credential %d: %w", *credentialID, err)
	}
	if cred.Type != "" && cred.Type != model.CredentialTypeS3 {
		return nil, fmt.Errorf("unsupported credential type %q", cred.Type)
	}
	return r.newS3(*cred, r.endpoint), nil
}
