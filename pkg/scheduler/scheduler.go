// Package scheduler walks the crate/crate-version universe the ledger
// knows about and dispatches DownloadRequests into the pipeline
// (spec.md §4.6). It keeps the teacher's ticker/stopCh/zerolog shape
// (pkg/scheduler/scheduler.go's run/schedule pair) but replaces the
// container-bin-packing body entirely with the task-state gate spec.md
// describes.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/criner-dev/criner/pkg/download"
	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/log"
	"github.com/criner-dev/criner/pkg/metrics"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/rs/zerolog"

	"bytes"
)

// MaxAttempts bounds how many times a task may accumulate
// AttemptsWithFailure before the scheduler gives up retrying it.
// Chosen to match the teacher's own default retry count for health
// checks (pkg/health/health.go's DefaultConfig().Retries = 3);
// spec.md §9 leaves the exact cap an open question.
const MaxAttempts = 3

const (
	downloadProcess = "download"
	downloadVersion = "1.0.0"
)

// Scheduler dispatches DownloadRequests for every (crate, version) the
// ledger knows about that still needs download work.
type Scheduler struct {
	db        *ledger.DB
	out       chan<- download.Request
	logger    zerolog.Logger
	startedAt time.Time

	scratch *bytes.Buffer
}

// New builds a Scheduler. startedAt is the process's own start time,
// used to detect an InProgress row left behind by a prior crash: a
// task claimed before this process existed can never be finished by
// it, so it is re-dispatched.
func New(db *ledger.DB, out chan<- download.Request, startedAt time.Time) *Scheduler {
	return &Scheduler{
		db:        db,
		out:       out,
		logger:    log.WithComponent("scheduler"),
		startedAt: startedAt,
		scratch:   &bytes.Buffer{},
	}
}

// Run ticks every interval, calling Schedule once per cycle, until ctx
// is canceled or deadline has passed. A zero deadline means no cutoff.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, deadline time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("scheduler started")

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			s.logger.Info().Msg("scheduler stopping: deadline reached")
			return
		}
		select {
		case <-ticker.C:
			if err := s.Schedule(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduling cycle failed")
			}
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		}
	}
}

// Schedule performs one scheduling cycle: for every known crate
// version, ask the ledger whether its download task needs work, and
// if so emit a DownloadRequest. Sends block when the download queue
// is saturated, which is the pipeline's only rate limit on the
// scheduler (spec.md §4.6).
func (s *Scheduler) Schedule(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ScheduleCycleDuration)

	return s.db.Crates.ForEach(func(name string, crate model.Crate) error {
		for _, version := range crate.Versions {
			if err := s.scheduleVersion(ctx, name, version); err != nil {
				s.logger.Error().Err(err).Str("crate", name).Str("version", version).
					Msg("failed to schedule crate version")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	})
}

func (s *Scheduler) scheduleVersion(ctx context.Context, name, version string) error {
	taskKey := key.AppendTask(s.scratch, name, version, downloadProcess, downloadVersion)
	task, found, err := s.db.Tasks.Get(taskKey)
	if err != nil {
		return err
	}
	if found && !s.needsWork(task) {
		return nil
	}

	if _, found, err := s.db.CrateVersions.Get(key.AppendEntity(s.scratch, name, version)); err != nil {
		return err
	} else if !found {
		// The crate table learned about this version before the
		// crate_version row landed; retry next cycle.
		return nil
	}

	req := download.Request{
		CrateName:    name,
		CrateVersion: version,
		Kind:         "crate",
		URL:          downloadURL(name, version),
	}

	select {
	case s.out <- req:
		metrics.ScheduleDispatchedTotal.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// needsWork implements spec.md §4.6's task-state gate: absent or
// NotStarted needs work; InProgress needs work only if it predates
// this process (a crash left it stuck); Complete never does;
// AttemptsWithFailure needs work until MaxAttempts is reached.
func (s *Scheduler) needsWork(task model.Task) bool {
	switch task.State.Kind {
	case model.NotStarted:
		return true
	case model.InProgress:
		return task.StoredAt.Before(s.startedAt)
	case model.Complete:
		return false
	case model.AttemptsWithFailure:
		return len(task.State.Errors) < MaxAttempts
	default:
		return false
	}
}

// downloadURL builds the static.crates.io archive URL for a
// crate-version, matching crates.io's own published path layout.
func downloadURL(name, version string) string {
	return fmt.Sprintf("https://static.crates.io/crates/%s/%s-%s.crate", name, name, version)
}
