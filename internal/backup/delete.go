package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/storage"
)

// Delete removes a backup's artifact and record. A running dump or restore
// of it is stopped. With force, storage failures do not keep the record.
func (m *Manager) Delete(ctx context.Context, id string, force bool) error {
	job, err := m.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Destination != model.DestinationTemporaryStream {
		if err := m.deleteArtifact(ctx, job); err != nil {
			if !force {
				return err
			}
			m.logger.Warn().Err(err).Str("job_id", id).Msg("ignoring artifact deletion failure")
		}
	}

	m.mu.Lock()
	p := m.running[id]
	m.mu.Unlock()
	if p != nil {
		p.Kill(errAbandoned)
	}
	return m.jobs.Delete(ctx, id)
}

func (m *Manager) deleteArtifact(ctx context.Context, job *model.BackupJob) error {
	backend, err := m.storage.Resolve(ctx, job.CredentialID)
	if err != nil {
		return err
	}
	if err := backend.Delete(ctx, job.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Retain keeps the newest keep automatic backups of a connection and
// deletes the rest. It reports how many were deleted.
func (m *Manager) Retain(ctx context.Context, connectionID string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	ids, err := m.jobs.ListIDs(ctx, connectionID, model.InitiatorAutomatic)
	if err != nil {
		return 0, err
	}
	if len(ids) <= keep {
		return 0, nil
	}
	deleted := 0
	var errs []error
	for _, id := range ids[keep:] {
		if err := m.Delete(ctx, id, true); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}
