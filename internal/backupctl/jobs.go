package backupctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/platform"
)

type accepted struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
}

// StartDump asks for a manual backup and returns the new job id.
func (c *Client) StartDump(ctx context.Context, connID string, credentialID *int64, opts model.DumpOptions) (string, error) {
	resp, err := c.Post(ctx, "/connections/"+pathEscape(connID)+"/dumps", map[string]any{
		"credential_id": credentialID,
		"options":       opts,
	})
	if err != nil {
		return "", fmt.Errorf("start dump: %w", err)
	}
	var a accepted
	if err := resp.Decode(&a); err != nil {
		return "", err
	}
	return a.ID, nil
}

// StartRestore replays a backup. An empty connID restores into the
// backup's own connection.
func (c *Client) StartRestore(ctx context.Context, backupID, connID string, opts model.RestoreOptions) error {
	_, err := c.Post(ctx, "/backups/"+pathEscape(backupID)+"/restore", map[string]any{
		"connection_id": connID,
		"options":       opts,
	})
	if err != nil {
		return fmt.Errorf("start restore: %w", err)
	}
	return nil
}

func (c *Client) Job(ctx context.Context, id string) (*model.BackupJob, error) {
	resp, err := c.Get(ctx, "/backups/"+pathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	var job model.BackupJob
	if err := resp.Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Jobs returns the newest backups of a connection.
func (c *Client) Jobs(ctx context.Context, connID string, limit int) ([]model.BackupJob, error) {
	resp, err := c.Get(ctx, fmt.Sprintf("/connections/%s/backups?limit=%d", pathEscape(connID), limit))
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	items, err := resp.Items()
	if err != nil {
		return nil, err
	}
	var jobs []model.BackupJob
	if err := (&Response{Body: items}).Decode(&jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) DeleteJob(ctx context.Context, id string, force bool) error {
	path := "/backups/" + pathEscape(id)
	if force {
		path += "?force=true"
	}
	if _, err := c.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete backup %s: %w", id, err)
	}
	return nil
}

// ErrJobFailed wraps the message a failed job recorded.
var ErrJobFailed = errors.New("job failed")

// Wait polls a job until the selected status leaves loading. progress is
// called on every poll while it is still loading.
func (c *Client) Wait(ctx context.Context, id string, restore bool, interval time.Duration, progress func(model.Progress)) (*model.BackupJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		status := job.Status
		if restore {
			if job.RestoreStatus == nil {
				return nil, fmt.Errorf("backup %s has no restore", id)
			}
			status = *job.RestoreStatus
		}
		switch {
		case status.IsErr():
			return job, fmt.Errorf("%w: %s", ErrJobFailed, status.Message())
		case status.IsOK():
			return job, nil
		case progress != nil:
			progress(status.Progress())
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download saves a backup to path, following a signed URL redirect when
// the artifact lives in object storage.
func (c *Client) Download(ctx context.Context, id, path string) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/backups/"+pathEscape(id)+"/download", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusFound {
		loc := resp.Header.Get("Location")
		resp.Body.Close()
		redirect, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
		if err != nil {
			return 0, fmt.Errorf("follow redirect: %w", err)
		}
		// The signed URL carries its own authorization; no timeout, large files.
		if resp, err = http.DefaultClient.Do(redirect); err != nil {
			return 0, fmt.Errorf("download %s from storage: %w", id, err)
		}
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

// FormatJob renders one line per job for terminal output.
func FormatJob(j model.BackupJob) string {
	size := "-"
	if j.SizeBytes != nil {
		size = platform.Bytes(*j.SizeBytes)
	}
	line := fmt.Sprintf("%-60s %-10s %-20s %8s  %s", j.ID, j.Destination, j.Initiator, size, j.Status)
	if j.RestoreStatus != nil {
		line += "  restore=" + j.RestoreStatus.String()
	}
	return line
}
