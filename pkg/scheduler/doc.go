/*
Package scheduler walks the ledger's crate/crate-version universe and
dispatches download work into the pipeline.

# Architecture

The scheduler ticks on a fixed interval, processing every known crate
version in each cycle:

	┌────────────────────────────────────────────────────────────┐
	│                    Scheduler Loop                          │
	│              (every interval, until deadline)               │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. Walk every crate in the ledger                          │
	│  2. For each known version, look up its download task      │
	│  3. Absent / NotStarted / stale InProgress / retryable      │
	│     AttemptsWithFailure -> send a DownloadRequest           │
	│  4. Complete, or AttemptsWithFailure at the cap -> skip     │
	└──────────────────────────────────────────────────────────────┘

# Usage

	sched := scheduler.New(db, downloadQueue, time.Now())
	go sched.Run(ctx, 5*time.Second, deadline)

The scheduler holds no state of its own beyond its own start time —
every decision is read fresh from the ledger each cycle, so a crashed
and restarted scheduler picks back up exactly where the ledger left
off.

# Backpressure

Schedule blocks on sending into the download queue when it is full.
This is the only throttle on how fast the scheduler dispatches work:
a slow download stage naturally slows scheduling, and a fast one lets
the scheduler keep pace.
*/
package scheduler
