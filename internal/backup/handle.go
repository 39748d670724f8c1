package backup

import (
	"context"

	"github.com/edvin/pgbackup/internal/model"
)

// Handle follows a job running in the background.
type Handle struct {
	Job  *model.BackupJob
	done chan struct{}
	err  error
}

func newHandle(job *model.BackupJob) *Handle {
	return &Handle{Job: job, done: make(chan struct{})}
}

// Done is closed once the outcome has been recorded.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is the terminal error of the job; valid after Done is closed.
func (h *Handle) Err() error { return h.err }

// Wait blocks until the job is over or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CompletedHandle returns a Handle for a job that has already ended with err.
func CompletedHandle(job *model.BackupJob, err error) *Handle {
	h := newHandle(job)
	h.err = err
	close(h.done)
	return h
}
