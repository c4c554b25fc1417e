/*
Package reconciler turns raw ledger counts into the daily activity
summary spec.md §3's meta table describes.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                  Reconciler Loop (every 10s)                │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. Read current crate/crate_version row counts             │
	│  2. Diff against the counts last observed                  │
	│  3. Merge the (non-negative) delta into today's meta row   │
	└──────────────────────────────────────────────────────────────┘

The reconciler holds only its last-observed counts in memory, starting
from zero: the first cycle after a start or restart merges the full
current counts into today's meta row, and later cycles merge only the
growth since the previous cycle. A delta is clamped so it never goes
negative.

# Usage

	rec := reconciler.New(db)
	rec.Start()
	defer rec.Stop()
*/
package reconciler
