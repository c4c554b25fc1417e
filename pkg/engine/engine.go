// Package engine wires the ledger, bounded queues, worker pools,
// scheduler, reconciler, and index poller into one owned subsystem,
// exposed as a single Run call — the teacher's central
// pkg/manager.Manager idiom ("one object owns the subsystem
// lifecycles, exposes Start/Shutdown") adapted from cluster
// orchestration to task-pipeline orchestration (spec.md §2, §4.13).
package engine

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/criner-dev/criner/pkg/download"
	"github.com/criner-dev/criner/pkg/extract"
	"github.com/criner-dev/criner/pkg/index"
	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/log"
	"github.com/criner-dev/criner/pkg/metrics"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/criner-dev/criner/pkg/pipeline"
	"github.com/criner-dev/criner/pkg/progress"
	"github.com/criner-dev/criner/pkg/reconciler"
	"github.com/criner-dev/criner/pkg/report"
	"github.com/criner-dev/criner/pkg/scheduler"
	"github.com/criner-dev/criner/pkg/timing"
)

// Config configures one Miner run. Zero values fall back to sane
// defaults (see New).
type Config struct {
	AssetsDir  string
	ReportsDir string

	IOBoundProcessors   int
	CPUBoundProcessors  int
	CPUOBoundProcessors int

	ScheduleInterval      time.Duration
	FetchEvery            time.Duration
	ProcessAndReportEvery time.Duration
	Deadline              time.Time

	Index Source

	ProgressOut io.Writer
}

// Source is a narrowed view of index.Source, kept local so engine
// doesn't force every caller to import pkg/index just to set a field.
type Source = index.Source

const (
	defaultQueueDepth     = 64
	defaultIOProcessors   = 8
	defaultCPUProcessors  = 4
	defaultCPUOProcessors = 2
)

// Miner bundles every subsystem a `mine` run needs.
type Miner struct {
	db *ledger.DB

	downloadQueue chan download.Request
	extractQueue  chan extract.Request
	reportQueue   chan report.Request

	downloadDriver *pipeline.Driver[download.Request]
	extractDriver  *pipeline.Driver[extract.Request]
	reportDriver   *pipeline.Driver[report.Request]

	scheduler  *scheduler.Scheduler
	reconciler *reconciler.Reconciler
	metrics    *metrics.Collector
	reportGen  *report.Generator
	index      Source

	tree *progress.Tree

	cfg Config
}

// New builds a Miner over db. Callers own db's lifecycle (Open/Close).
func New(db *ledger.DB, cfg Config) *Miner {
	if cfg.IOBoundProcessors == 0 {
		cfg.IOBoundProcessors = defaultIOProcessors
	}
	if cfg.CPUBoundProcessors == 0 {
		cfg.CPUBoundProcessors = defaultCPUProcessors
	}
	if cfg.CPUOBoundProcessors == 0 {
		cfg.CPUOBoundProcessors = defaultCPUOProcessors
	}
	if cfg.ScheduleInterval == 0 {
		cfg.ScheduleInterval = 5 * time.Second
	}
	if cfg.ProgressOut == nil {
		cfg.ProgressOut = io.Discard
	}
	if cfg.Index == nil {
		cfg.Index = index.NullSource{}
	}

	downloadQueue := make(chan download.Request, defaultQueueDepth)
	extractQueue := make(chan extract.Request, defaultQueueDepth)
	reportQueue := make(chan report.Request, defaultQueueDepth)

	tree := progress.NewTree(cfg.ProgressOut, 200*time.Millisecond)

	downloadAgent := download.NewAgent(cfg.AssetsDir, db.Results, extractQueue)
	extractAgent := extract.NewAgent(db.Results, reportQueue)
	reportGen := report.NewGenerator(db.Results, db.ReportDone, cfg.ReportsDir)
	reportAgent := report.NewAgent(reportGen)

	return &Miner{
		db:            db,
		downloadQueue: downloadQueue,
		extractQueue:  extractQueue,
		reportQueue:   reportQueue,
		downloadDriver: &pipeline.Driver[download.Request]{
			Label:     "download",
			Workers:   cfg.IOBoundProcessors,
			Processor: downloadAgent,
			Tasks:     db.Tasks,
			Tree:      tree,
			In:        downloadQueue,
		},
		extractDriver: &pipeline.Driver[extract.Request]{
			Label:     "extract",
			Workers:   cfg.CPUBoundProcessors,
			Processor: extractAgent,
			Tasks:     db.Tasks,
			Tree:      tree,
			In:        extractQueue,
		},
		reportDriver: &pipeline.Driver[report.Request]{
			Label:     "report",
			Workers:   cfg.CPUOBoundProcessors,
			Processor: reportAgent,
			Tasks:     db.Tasks,
			Tree:      tree,
			In:        reportQueue,
		},
		scheduler:  scheduler.New(db, downloadQueue, time.Now()),
		reconciler: reconciler.New(db),
		metrics:    metrics.NewCollector(db),
		reportGen:  reportGen,
		index:      cfg.Index,
		tree:       tree,
		cfg:        cfg,
	}
}

// Run starts every subsystem and blocks until ctx is canceled or the
// configured deadline passes, then drains the worker pools and
// returns. It is the single entry point cmd/criner's `mine` command
// calls.
func (m *Miner) Run(ctx context.Context) error {
	logger := log.WithComponent("engine")
	logger.Info().
		Int("io_bound_processors", m.cfg.IOBoundProcessors).
		Int("cpu_bound_processors", m.cfg.CPUBoundProcessors).
		Int("cpu_o_bound_processors", m.cfg.CPUOBoundProcessors).
		Msg("miner starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !m.cfg.Deadline.IsZero() {
		var deadlineCancel context.CancelFunc
		ctx, deadlineCancel = context.WithDeadline(ctx, m.cfg.Deadline)
		defer deadlineCancel()
	}

	m.reconciler.Start()
	defer m.reconciler.Stop()

	m.metrics.Start()
	defer m.metrics.Stop()

	go m.tree.Render()
	defer m.tree.Stop()

	go timing.RepeatEveryS(ctx, 5*time.Second, m.sampleQueueDepth, func(error) {})

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.downloadDriver.Run(ctx)
	}()

	extractDone := make(chan struct{})
	go func() {
		defer close(extractDone)
		m.extractDriver.Run(ctx)
	}()

	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		m.reportDriver.Run(ctx)
	}()

	fetchEvery := m.cfg.FetchEvery
	if fetchEvery == 0 {
		fetchEvery = time.Hour
	}
	go timing.RepeatEveryS(ctx, fetchEvery, m.fetchIndex, func(err error) {
		logger.Error().Err(err).Msg("index poll failed")
	})

	// generatePendingReports is a resume-safety sweep, not the primary
	// report path: extract.Agent.ScheduleNext feeds the report queue
	// directly on every successful extract, so this ticker only picks
	// up exploded results a prior run recorded but never reported (a
	// crash between extract committing and the in-memory queue send).
	reportEvery := m.cfg.ProcessAndReportEvery
	if reportEvery == 0 {
		reportEvery = 30 * time.Second
	}
	go timing.RepeatEveryS(ctx, reportEvery, m.generatePendingReports, func(err error) {
		logger.Error().Err(err).Msg("report generation cycle failed")
	})

	m.scheduler.Run(ctx, m.cfg.ScheduleInterval, m.cfg.Deadline)

	<-done
	<-extractDone
	<-reportDone
	logger.Info().Msg("miner stopped")
	return ctx.Err()
}

// sampleQueueDepth publishes the current backlog of each bounded
// pipeline queue, the only ledger-independent gauge the engine owns
// directly rather than through metrics.Collector.
func (m *Miner) sampleQueueDepth(ctx context.Context) error {
	metrics.QueueDepth.WithLabelValues("download").Set(float64(len(m.downloadQueue)))
	metrics.QueueDepth.WithLabelValues("extract").Set(float64(len(m.extractQueue)))
	metrics.QueueDepth.WithLabelValues("report").Set(float64(len(m.reportQueue)))
	return nil
}

// fetchIndex is the index-fetch collaborator, run every FetchEvery
// (one hour by default): poll the configured Source for newly published crate
// versions and merge them into the crate/crate_version tables, where
// the scheduler picks them up on its own next cycle.
func (m *Miner) fetchIndex(ctx context.Context) error {
	versions, err := m.index.Poll(ctx)
	if err != nil {
		return err
	}
	for _, cv := range versions {
		if _, err := m.db.Crates.Upsert(cv.Name, cv); err != nil {
			return err
		}
		if _, err := m.db.CrateVersions.Upsert(key.AppendEntity(new(bytes.Buffer), cv.Name, cv.Version), cv); err != nil {
			return err
		}
	}
	return nil
}

// generatePendingReports walks every ExplodedCrate result in the
// ledger and generates the waste report for any (crate, version) that
// doesn't have one yet, per spec.md §4.9.
func (m *Miner) generatePendingReports(ctx context.Context) error {
	type pending struct {
		crate, version string
		exploded       model.ExplodedCrateResult
	}
	var work []pending

	err := m.db.Results.ForEach(func(k string, r model.TaskResult) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.Kind != model.ResultExplodedCrate || r.ExplodedCrate == nil {
			return nil
		}
		parts := strings.Split(k, string(key.Sep))
		if len(parts) < 2 {
			return nil
		}
		crate, version := parts[0], parts[1]

		done, err := m.db.ReportDone.IsDone(key.AppendResult(new(bytes.Buffer), crate, version, report.ProcessName, report.ProcessVersion, "done"))
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		work = append(work, pending{crate: crate, version: version, exploded: *r.ExplodedCrate})
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range work {
		if _, err := m.reportGen.GenerateSingleFile(p.crate, p.version, p.exploded); err != nil {
			return err
		}
	}
	return nil
}
