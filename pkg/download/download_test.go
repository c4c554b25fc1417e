package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/criner-dev/criner/pkg/errs"
	"github.com/criner-dev/criner/pkg/extract"
	"github.com/criner-dev/criner/pkg/ledger"
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

func TestShardComputesPathByNameLength(t *testing.T) {
	assert.Equal(t, filepath.Join("assets", "1", "a", "1.0.0", "download:1.0.0.crate"), Shard("assets", "a", "1.0.0", "crate"))
	assert.Equal(t, filepath.Join("assets", "2", "ab", "1.0.0", "download:1.0.0.crate"), Shard("assets", "ab", "1.0.0", "crate"))
	assert.Equal(t, filepath.Join("assets", "3", "a", "1.0.0", "download:1.0.0.crate"), Shard("assets", "abc", "1.0.0", "crate"))
	assert.Equal(t, filepath.Join("assets", "se", "rd", "serde", "1.0.3", "download:1.0.0.crate"), Shard("assets", "serde", "1.0.3", "crate"))
}

func TestProcessHappyPathWritesFileAndResult(t *testing.T) {
	body := "crate archive bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	db := openTestDB(t)
	assetsDir := t.TempDir()
	out := make(chan extract.Request, 1)
	agent := NewAgent(assetsDir, db.Results, out)

	req := Request{CrateName: "serde", CrateVersion: "1.0.3", Kind: "crate", URL: srv.URL}
	_, _, _ = agent.Set(req)

	ctxMsg, err := agent.Process(context.Background(), req)
	require.NoError(t, err, ctxMsg)

	data, err := os.ReadFile(Shard(assetsDir, "serde", "1.0.3", "crate"))
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	require.NoError(t, agent.ScheduleNext(context.Background(), req))
	select {
	case staged := <-out:
		assert.Equal(t, "serde", staged.CrateName)
		assert.Equal(t, Shard(assetsDir, "serde", "1.0.3", "crate"), staged.DownloadPath)
	default:
		t.Fatal("expected a staged extract request")
	}
}

func TestProcessFailsWithoutContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Transfer-Encoding", "chunked")
		flusher, ok := w.(http.Flusher)
		_, _ = w.Write([]byte("partial"))
		if ok {
			flusher.Flush()
		}
	}))
	defer srv.Close()

	db := openTestDB(t)
	agent := NewAgent(t.TempDir(), db.Results, make(chan extract.Request, 1))
	req := Request{CrateName: "serde", CrateVersion: "1.0.3", Kind: "crate", URL: srv.URL}

	_, err := agent.Process(context.Background(), req)
	require.Error(t, err)

	var tagged *errs.Error
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, errs.KindInvalidHeader, tagged.Kind)
}

func TestProcessOverwritesPartialFileOnRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	db := openTestDB(t)
	assetsDir := t.TempDir()
	path := Shard(assetsDir, "serde", "1.0.3", "crate")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("leftover-from-a-crashed-attempt-much-longer-than-ok"), 0o644))

	agent := NewAgent(assetsDir, db.Results, make(chan extract.Request, 1))
	req := Request{CrateName: "serde", CrateVersion: "1.0.3", Kind: "crate", URL: srv.URL}

	_, err := agent.Process(context.Background(), req)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}
