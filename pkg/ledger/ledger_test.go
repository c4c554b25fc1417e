package ledger

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/criner-dev/criner/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenFile(filepath.Join(t.TempDir(), "criner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCrateUpsertMergesVersionsAscendingDedup(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Crates.Upsert("serde", model.CrateVersion{Name: "serde", Version: "1.0.3"})
	require.NoError(t, err)
	_, err = db.Crates.Upsert("serde", model.CrateVersion{Name: "serde", Version: "1.0.1"})
	require.NoError(t, err)
	result, err := db.Crates.Upsert("serde", model.CrateVersion{Name: "serde", Version: "1.0.3"})
	require.NoError(t, err)

	assert.Equal(t, []string{"1.0.1", "1.0.3"}, result.Versions)
}

func TestTaskUpsertFoldsStateAcrossAttempts(t *testing.T) {
	db := openTestDB(t)
	key := "serde:1.0.3:download:1.0.0"

	_, err := db.Tasks.Upsert(key, model.Task{Process: "download", State: model.StateAttemptsWithFailure([]string{"timeout"})})
	require.NoError(t, err)
	_, err = db.Tasks.Upsert(key, model.Task{Process: "download", State: model.StateInProgress(nil)})
	require.NoError(t, err)
	final, err := db.Tasks.Upsert(key, model.Task{Process: "download", State: model.StateAttemptsWithFailure([]string{"connection reset"})})
	require.NoError(t, err)

	assert.Equal(t, model.AttemptsWithFailure, final.State.Kind)
	assert.Equal(t, []string{"timeout", "connection reset"}, final.State.Errors)
}

func TestTaskUpdateAppliesClosureVerbatim(t *testing.T) {
	db := openTestDB(t)
	key := "serde:1.0.3:download:1.0.0"

	require.NoError(t, db.Tasks.Insert(key, model.Task{Process: "download", State: model.StateComplete()}))

	result, err := db.Tasks.Update(key, func(prev model.Task) model.Task {
		prev.State = model.StateNotStarted()
		return prev
	})
	require.NoError(t, err)
	assert.Equal(t, model.NotStarted, result.State.Kind)

	stored, ok, err := db.Tasks.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.NotStarted, stored.State.Kind)
}

func TestResultUpsertOverwrites(t *testing.T) {
	db := openTestDB(t)
	key := "serde:1.0.3:download:1.0.0:download"

	_, err := db.Results.Upsert(key, model.ResultOfDownload(model.DownloadResult{Kind: "crate", URL: "https://static.crates.io/a"}))
	require.NoError(t, err)
	_, err = db.Results.Upsert(key, model.ResultOfDownload(model.DownloadResult{Kind: "crate", URL: "https://static.crates.io/b"}))
	require.NoError(t, err)

	stored, ok, err := db.Results.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://static.crates.io/b", stored.Download.URL)
}

func TestMetaUpsertSumsFieldwise(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Meta.Upsert("2026-07-30", model.Context{Counts: model.Counts{Crates: 5, CrateVersions: 12}})
	require.NoError(t, err)
	total, err := db.Meta.Upsert("2026-07-30", model.Context{Counts: model.Counts{Crates: 2, CrateVersions: 3}})
	require.NoError(t, err)

	assert.EqualValues(t, 7, total.Counts.Crates)
	assert.EqualValues(t, 15, total.Counts.CrateVersions)
}

func TestMetaMostRecentPicksLexicographicallyLastDate(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Meta.Upsert("2026-07-01", model.Context{Counts: model.Counts{Crates: 1}})
	require.NoError(t, err)
	_, err = db.Meta.Upsert("2026-07-30", model.Context{Counts: model.Counts{Crates: 2}})
	require.NoError(t, err)
	_, err = db.Meta.Upsert("2026-07-15", model.Context{Counts: model.Counts{Crates: 3}})
	require.NoError(t, err)

	key, ctx, ok, err := db.Meta.MostRecent()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-07-30", key)
	assert.EqualValues(t, 2, ctx.Counts.Crates)
}

func TestReportDoneIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	key := "serde:1.0.3:waste:1.0.0"

	done, err := db.ReportDone.IsDone(key)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, db.ReportDone.SetDone(key))
	require.NoError(t, db.ReportDone.SetDone(key))

	done, err = db.ReportDone.IsDone(key)
	require.NoError(t, err)
	assert.True(t, done)
}

// TestConcurrentTaskUpsertsAreLinearized drives N goroutines upserting
// distinct attempt failures onto the same task key and asserts every
// failure ends up folded into the final Errors slice exactly once —
// i.e. bbolt's single-writer Update serializes the read-merge-write.
func TestConcurrentTaskUpsertsAreLinearized(t *testing.T) {
	db := openTestDB(t)
	key := "serde:1.0.3:download:1.0.0"
	const n = 25

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.Tasks.Upsert(key, model.Task{
				Process: "download",
				State:   model.StateAttemptsWithFailure([]string{attemptLabel(i)}),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, ok, err := db.Tasks.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, final.State.Errors, n)

	seen := make(map[string]bool, n)
	for _, e := range final.State.Errors {
		assert.False(t, seen[e], "duplicate error recorded: %s", e)
		seen[e] = true
	}
}

func attemptLabel(i int) string {
	return "attempt-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestCountsReflectInsertedRows(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Crates.Insert("serde", model.CrateVersion{Name: "serde", Version: "1.0.0"}))
	require.NoError(t, db.CrateVersions.Insert("serde:1.0.0", model.CrateVersion{Name: "serde", Version: "1.0.0"}))

	crateCount, err := db.Crates.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, crateCount)

	cvCount, err := db.CrateVersions.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, cvCount)
}
