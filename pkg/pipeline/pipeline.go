// Package pipeline implements the generic Processor contract and the
// bounded-worker Driver that feeds it — one goroutine per worker,
// reading off an in-queue, running set -> process -> schedule_next,
// folding the outcome into the ledger's task row via Upsert so the
// state-merge rule (pkg/model.Merge) is what accumulates failure
// histories across attempts.
//
// The per-worker loop is the teacher's own run/stopCh shape
// (pkg/scheduler/scheduler.go's run, pkg/worker/worker.go's
// long-running goroutines) generalized from a fixed container-sync
// body to any Processor[Req].
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/log"
	"github.com/criner-dev/criner/pkg/metrics"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/criner-dev/criner/pkg/progress"
	"github.com/rs/zerolog"
)

// identifiable is implemented by every stage's Request type
// (download.Request, extract.Request, report.Request all expose an
// Identify method); handle uses it to tag a failure's log line with
// the (crate, version) it belongs to via log.WithCrateVersion.
type identifiable interface {
	Identify() (crate, version string)
}

// Processor is the triple of operations spec.md §4.3 describes. Req is
// the stage's request type (DownloadRequest, ExtractRequest, ...).
type Processor[Req any] interface {
	// Set synchronously prepares internal state for one request and
	// derives its task key and initial Task descriptor. No I/O.
	Set(req Req) (taskKey string, task model.Task, progressMessage string)
	// Process performs the actual work. May block on disk/network.
	// ctxMessage augments any returned error with human context.
	Process(ctx context.Context, req Req) (ctxMessage string, err error)
	// ScheduleNext optionally hands the request off to the next
	// stage's queue after a successful Process. No-op for a terminal
	// stage. May block on a bounded-send backpressure point.
	ScheduleNext(ctx context.Context, req Req) error
	// IdleMessage is what the progress tree shows once a worker parks
	// waiting for its next request.
	IdleMessage() string
}

// Driver runs Workers goroutines, each pulling requests off In and
// running one Processor's full lifecycle per request.
type Driver[Req any] struct {
	Label     string
	Workers   int
	Processor Processor[Req]
	Tasks     *ledger.TaskTable
	Tree      *progress.Tree
	In        <-chan Req
}

// Run blocks until In is closed and every in-flight request has been
// processed, or ctx is canceled. Workers run concurrently; per-worker
// ordering is sequential (set happens-before process happens-before
// schedule_next happens-before the next set), but there is no
// ordering guarantee across workers.
func (d *Driver[Req]) Run(ctx context.Context) {
	logger := log.WithComponent(d.Label)
	item := d.Tree.Item(d.Label, 0)

	var wg sync.WaitGroup
	for i := 0; i < d.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.runWorker(ctx, worker, logger, item)
		}(i)
	}
	wg.Wait()
}

func (d *Driver[Req]) runWorker(ctx context.Context, worker int, logger zerolog.Logger, item *progress.Item) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-d.In:
			if !ok {
				return
			}
			d.handle(ctx, req, logger, item)
		}
	}
}

func (d *Driver[Req]) handle(ctx context.Context, req Req, logger zerolog.Logger, item *progress.Item) {
	taskKey, task, progressMessage := d.Processor.Set(req)
	item.SetMessage(progressMessage)

	task.State = model.StateInProgress(nil)
	if _, err := d.Tasks.Upsert(taskKey, task); err != nil {
		logger.Error().Err(err).Str("task_key", taskKey).Msg("failed to mark task in-progress")
		return
	}

	metrics.TaskAttemptsTotal.WithLabelValues(d.Label).Inc()
	timer := metrics.NewTimer()
	ctxMessage, procErr := d.Processor.Process(ctx, req)
	timer.ObserveDurationVec(metrics.TaskDuration, d.Label)

	finalState := model.StateComplete()
	outcome := "complete"
	if procErr != nil {
		finalState = model.StateAttemptsWithFailure([]string{fmt.Sprintf("%s: %s", ctxMessage, procErr)})
		outcome = "failed"

		taskLogger := logger
		if idr, ok := any(req).(identifiable); ok {
			crate, version := idr.Identify()
			taskLogger = log.WithCrateVersion(crate, version).With().Str("component", d.Label).Logger()
		}
		taskLogger.Error().Err(procErr).Str("ctx", ctxMessage).Msg("task attempt failed")
	}
	task.State = finalState
	if _, err := d.Tasks.Upsert(taskKey, task); err != nil {
		logger.Error().Err(err).Str("task_key", taskKey).Msg("failed to record task outcome")
		item.Errored()
		return
	}
	metrics.TasksProcessedTotal.WithLabelValues(d.Label, outcome).Inc()

	if procErr == nil {
		item.Advance(1)
		if err := d.Processor.ScheduleNext(ctx, req); err != nil {
			logger.Error().Err(err).Str("task_key", taskKey).Msg("schedule_next failed")
		}
	} else {
		item.Errored()
	}
	item.SetMessage(d.Processor.IdleMessage())
}
