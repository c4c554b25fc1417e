package reconciler

import (
	"context"
	"time"

	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/log"
	"github.com/criner-dev/criner/pkg/metrics"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/rs/zerolog"
)

// Reconciler turns the ledger's raw crate/crate_version counts into
// the daily meta.Context accumulation spec.md §3 describes: once per
// cycle it diffs the current totals against what it last observed and
// merges the delta into today's meta row.
type Reconciler struct {
	meta          *ledger.MetaTable
	crates        *ledger.CrateTable
	crateVersions *ledger.CrateVersionTable
	logger        zerolog.Logger
	stopCh        chan struct{}

	lastCrates        uint64
	lastCrateVersions uint64
}

// New builds a Reconciler over the ledger's crate/crate_version/meta
// tables.
func New(db *ledger.DB) *Reconciler {
	return &Reconciler{
		meta:          db.Meta,
		crates:        db.Crates,
		crateVersions: db.CrateVersions,
		logger:        log.WithComponent("reconciler"),
		stopCh:        make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// run is the main reconciliation loop.
func (r *Reconciler) run() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// reconcile performs one reconciliation cycle: read the ledger's
// current crate/crate_version counts, diff against what was last
// observed, and merge the non-negative delta into today's meta row.
func (r *Reconciler) reconcile(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	crateCount, err := r.crates.Count()
	if err != nil {
		return err
	}
	versionCount, err := r.crateVersions.Count()
	if err != nil {
		return err
	}

	delta := model.Context{
		Counts: model.Counts{
			Crates:        uint32(nonNegativeDelta(crateCount, r.lastCrates)),
			CrateVersions: nonNegativeDelta(versionCount, r.lastCrateVersions),
		},
	}
	r.lastCrates = crateCount
	r.lastCrateVersions = versionCount

	if delta.Counts.Crates == 0 && delta.Counts.CrateVersions == 0 {
		return nil
	}

	ctxTotal, err := r.meta.Upsert(ledger.TodayKey(), delta)
	if err != nil {
		return err
	}

	r.logger.Debug().
		Uint32("new_crates", delta.Counts.Crates).
		Uint64("new_crate_versions", delta.Counts.CrateVersions).
		Uint32("today_crates", ctxTotal.Counts.Crates).
		Uint64("today_crate_versions", ctxTotal.Counts.CrateVersions).
		Msg("reconciled ledger counts into today's context")

	return nil
}

// nonNegativeDelta returns current-previous, floored at 0: the ledger
// only grows, but a reconciler restarting mid-day must not underflow
// when its in-memory baseline resets to zero.
func nonNegativeDelta(current, previous uint64) uint64 {
	if current < previous {
		return 0
	}
	return current - previous
}
