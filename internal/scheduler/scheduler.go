// Package scheduler triggers automatic backups according to each
// connection's backup policy and trims old ones.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/edvin/pgbackup/internal/backup"
	"github.com/edvin/pgbackup/internal/capacity"
	"github.com/edvin/pgbackup/internal/logging"
	"github.com/edvin/pgbackup/internal/model"
)

// PolicyStore is satisfied by *store.Policies.
type PolicyStore interface {
	ListEnabled(ctx context.Context) ([]model.BackupPolicy, error)
	SetErr(ctx context.Context, connectionID string, msg *string) error
}

// JobFinder is satisfied by *store.Jobs.
type JobFinder interface {
	Latest(ctx context.Context, connectionID, initiator string) (*model.BackupJob, error)
}

// Backups is satisfied by *backup.Manager.
type Backups interface {
	CheckSpace(ctx context.Context, connectionID string, opts model.DumpOptions) (capacity.Result, error)
	CurrentJob(ctx context.Context, connectionID string) (*model.BackupJob, error)
	StartDump(ctx context.Context, req backup.DumpRequest) (*backup.Handle, error)
	Retain(ctx context.Context, connectionID string, keep int) (int, error)
}

type Scheduler struct {
	policies PolicyStore
	jobs     JobFinder
	backups  Backups
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	wg       sync.WaitGroup

	ticks     prometheus.Counter
	triggered *prometheus.CounterVec
}

// New creates a scheduler. Metrics are registered with reg when it is not
// nil.
func New(
	policies PolicyStore,
	jobs JobFinder,
	backups Backups,
	interval time.Duration,
	logger zerolog.Logger,
	reg prometheus.Registerer,
) *Scheduler {
	factory := promauto.With(reg)
	return &Scheduler{
		policies: policies,
		jobs:     jobs,
		backups:  backups,
		interval: interval,
		logger:   logging.Component(logger, "scheduler"),
		now:      time.Now,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "pgbackup_scheduler_ticks_total",
			Help: "Total scheduler evaluations of the enabled backup policies",
		}),
		triggered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pgbackup_scheduler_dumps_total",
			Help: "Automatic dumps by outcome of the trigger",
		}, []string{"result"}),
	}
}

// Run evaluates the policies once right away and then every interval until
// ctx is done. It returns after pending retention passes finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("starting scheduler")
	defer s.wg.Wait()

	s.Tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every enabled policy once.
func (s *Scheduler) Tick(ctx context.Context) {
	s.ticks.Inc()
	policies, err := s.policies.ListEnabled(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list backup policies failed")
		return
	}
	for _, p := range policies {
		if ctx.Err() != nil {
			return
		}
		if err := s.check(ctx, p); err != nil {
			s.logger.Error().Err(err).Str("connection_id", p.ConnectionID).Msg("automatic backup check failed")
		}
	}
}

func (s *Scheduler) check(ctx context.Context, p model.BackupPolicy) error {
	if p.IsLocal() {
		if _, err := s.backups.CheckSpace(ctx, p.ConnectionID, p.DumpOptions); err != nil {
			if capacity.IsCapacityError(err) {
				return s.setErr(ctx, p, err)
			}
			return fmt.Errorf("check space: %w", err)
		}
	}
	if p.Err != nil {
		if err := s.policies.SetErr(ctx, p.ConnectionID, nil); err != nil {
			return err
		}
	}

	current, err := s.backups.CurrentJob(ctx, p.ConnectionID)
	if err != nil {
		return fmt.Errorf("get current job: %w", err)
	}
	if current != nil {
		return nil
	}
	last, err := s.jobs.Latest(ctx, p.ConnectionID, model.InitiatorAutomatic)
	if err != nil {
		return err
	}
	var lastAt *time.Time
	if last != nil {
		lastAt = &last.CreatedAt
	}
	if !Due(p, lastAt, s.now()) {
		return nil
	}

	h, err := s.backups.StartDump(ctx, backup.DumpRequest{
		ConnectionID: p.ConnectionID,
		CredentialID: p.CredentialID,
		Options:      p.DumpOptions,
		Initiator:    model.InitiatorAutomatic,
	})
	switch {
	case errors.Is(err, backup.ErrJobInProgress):
		s.triggered.WithLabelValues("busy").Inc()
		return nil
	case capacity.IsCapacityError(err):
		s.triggered.WithLabelValues("no_space").Inc()
		return s.setErr(ctx, p, err)
	case err != nil:
		s.triggered.WithLabelValues("error").Inc()
		return fmt.Errorf("start automatic dump: %w", err)
	}
	s.triggered.WithLabelValues("started").Inc()
	s.logger.Info().Str("connection_id", p.ConnectionID).Str("job_id", h.Job.ID).Msg("automatic dump started")

	if p.KeepLast != nil && *p.KeepLast > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.retain(context.WithoutCancel(ctx), h, p.ConnectionID, *p.KeepLast)
		}()
	}
	return nil
}

// retain trims old automatic backups once the dump behind h succeeded.
func (s *Scheduler) retain(ctx context.Context, h *backup.Handle, connectionID string, keep int) {
	<-h.Done()
	if h.Err() != nil {
		return
	}
	n, err := s.backups.Retain(ctx, connectionID, keep)
	if err != nil {
		s.logger.Error().Err(err).Str("connection_id", connectionID).Msg("retention failed")
	}
	if n > 0 {
		s.logger.Info().Str("connection_id", connectionID).Int("deleted", n).Msg("old automatic backups deleted")
	}
}

func (s *Scheduler) setErr(ctx context.Context, p model.BackupPolicy, cause error) error {
	msg := cause.Error()
	if p.Err != nil && *p.Err == msg {
		return nil
	}
	s.logger.Warn().Str("connection_id", p.ConnectionID).Str("reason", msg).Msg("automatic backups paused")
	return s.policies.SetErr(ctx, p.ConnectionID, &msg)
}
