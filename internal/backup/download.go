package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/storage"
)

// Download is either a redirect to a signed URL or the artifact itself.
type Download struct {
	RedirectURL string
	Body        io.ReadCloser
	Size        int64
	ContentType string
	FileName    string
}

// downloadTTL gives a client at rate bytes/s enough time to fetch size
// bytes, and never less than a minute.
func downloadTTL(size, rate int64) time.Duration {
	ttl := time.Duration(size/rate) * time.Second
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

// Download serves a completed backup.
func (m *Manager) Download(ctx context.Context, id string) (*Download, error) {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Destination == model.DestinationTemporaryStream || !job.Status.IsOK() {
		return nil, fmt.Errorf("backup %s has no downloadable artifact: %w", id, ErrNotFound)
	}
	backend, err := m.storage.Resolve(ctx, job.CredentialID)
	if err != nil {
		return nil, err
	}

	var size int64
	if job.SizeBytes != nil {
		size = *job.SizeBytes
	}
	url, err := backend.SignedURL(ctx, id, downloadTTL(size, m.cfg.DownloadRate))
	if err == nil {
		return &Download{RedirectURL: url, Size: size, ContentType: job.ContentType, FileName: id}, nil
	}
	if !errors.Is(err, storage.ErrSignedURLUnsupported) {
		return nil, err
	}

	rc, size, err := backend.Download(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("backup %s artifact is missing: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &Download{Body: rc, Size: size, ContentType: job.ContentType, FileName: id}, nil
}
