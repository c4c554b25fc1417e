package scheduler

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/criner-dev/criner/pkg/download"
	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *ledger.DB {
	t.Helper()
	db, err := ledger.OpenFile(filepath.Join(t.TempDir(), "criner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedCrateVersion(t *testing.T, db *ledger.DB, name, version string) {
	t.Helper()
	cv := model.CrateVersion{Name: name, Version: version, Kind: model.Added}
	_, err := db.Crates.Upsert(name, cv)
	require.NoError(t, err)
	_, err = db.CrateVersions.Upsert(key.AppendEntity(new(bytes.Buffer), name, version), cv)
	require.NoError(t, err)
}

func TestScheduleDispatchesAbsentTask(t *testing.T) {
	db := openTestDB(t)
	seedCrateVersion(t, db, "serde", "1.0.3")

	out := make(chan download.Request, 1)
	sched := New(db, out, time.Now())

	require.NoError(t, sched.Schedule(context.Background()))

	select {
	case req := <-out:
		assert.Equal(t, "serde", req.CrateName)
		assert.Equal(t, "1.0.3", req.CrateVersion)
	default:
		t.Fatal("expected a dispatched download request")
	}
}

func TestScheduleSkipsCompleteTask(t *testing.T) {
	db := openTestDB(t)
	seedCrateVersion(t, db, "serde", "1.0.3")

	taskKey := key.AppendTask(new(bytes.Buffer), "serde", "1.0.3", downloadProcess, downloadVersion)
	require.NoError(t, db.Tasks.Insert(taskKey, model.Task{Process: downloadProcess, ProcessVersion: downloadVersion, State: model.StateComplete()}))

	out := make(chan download.Request, 1)
	sched := New(db, out, time.Now())
	require.NoError(t, sched.Schedule(context.Background()))

	select {
	case <-out:
		t.Fatal("complete task must not be re-dispatched")
	default:
	}
}

func TestScheduleRetriesFailureBelowCap(t *testing.T) {
	db := openTestDB(t)
	seedCrateVersion(t, db, "serde", "1.0.3")

	taskKey := key.AppendTask(new(bytes.Buffer), "serde", "1.0.3", downloadProcess, downloadVersion)
	require.NoError(t, db.Tasks.Insert(taskKey, model.Task{
		Process: downloadProcess, ProcessVersion: downloadVersion,
		State: model.StateAttemptsWithFailure([]string{"timeout"}),
	}))

	out := make(chan download.Request, 1)
	sched := New(db, out, time.Now())
	require.NoError(t, sched.Schedule(context.Background()))

	select {
	case <-out:
	default:
		t.Fatal("task below the attempt cap should be re-dispatched")
	}
}

func TestScheduleSkipsFailureAtCap(t *testing.T) {
	db := openTestDB(t)
	seedCrateVersion(t, db, "serde", "1.0.3")

	taskKey := key.AppendTask(new(bytes.Buffer), "serde", "1.0.3", downloadProcess, downloadVersion)
	require.NoError(t, db.Tasks.Insert(taskKey, model.Task{
		Process: downloadProcess, ProcessVersion: downloadVersion,
		State: model.StateAttemptsWithFailure([]string{"e1", "e2", "e3"}),
	}))

	out := make(chan download.Request, 1)
	sched := New(db, out, time.Now())
	require.NoError(t, sched.Schedule(context.Background()))

	select {
	case <-out:
		t.Fatal("task at the attempt cap must not be re-dispatched")
	default:
	}
}

func TestScheduleRecoversStaleInProgress(t *testing.T) {
	db := openTestDB(t)
	seedCrateVersion(t, db, "serde", "1.0.3")

	taskKey := key.AppendTask(new(bytes.Buffer), "serde", "1.0.3", downloadProcess, downloadVersion)
	require.NoError(t, db.Tasks.Insert(taskKey, model.Task{Process: downloadProcess, ProcessVersion: downloadVersion, State: model.StateInProgress(nil)}))

	out := make(chan download.Request, 1)
	// startedAt in the future relative to the task's StoredAt marks it stale.
	sched := New(db, out, time.Now().Add(time.Hour))
	require.NoError(t, sched.Schedule(context.Background()))

	select {
	case <-out:
	default:
		t.Fatal("stale in-progress task should be re-dispatched")
	}
}

func TestScheduleHonorsFreshInProgress(t *testing.T) {
	db := openTestDB(t)
	seedCrateVersion(t, db, "serde", "1.0.3")

	taskKey := key.AppendTask(new(bytes.Buffer), "serde", "1.0.3", downloadProcess, downloadVersion)
	require.NoError(t, db.Tasks.Insert(taskKey, model.Task{Process: downloadProcess, ProcessVersion: downloadVersion, State: model.StateInProgress(nil)}))

	out := make(chan download.Request, 1)
	// startedAt in the past means this process's own worker owns the task.
	sched := New(db, out, time.Now().Add(-time.Hour))
	require.NoError(t, sched.Schedule(context.Background()))

	select {
	case <-out:
		t.Fatal("an in-progress task owned by this process must not be re-dispatched")
	default:
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	db := openTestDB(t)
	out := make(chan download.Request, 1)
	sched := New(db, out, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx, time.Millisecond, time.Time{})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
