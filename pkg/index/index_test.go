package index

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/criner-dev/criner/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, versions ...model.CrateVersion) string {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range versions {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		buf.Write(data)
		buf.WriteByte('\n')
	}
	path := filepath.Join(t.TempDir(), "index.ndjson")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestNullSourcePollsNothing(t *testing.T) {
	versions, err := (NullSource{}).Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestFileSourcePollsAllRecordsOnFirstCall(t *testing.T) {
	path := writeFixture(t,
		model.CrateVersion{Name: "serde", Version: "1.0.0"},
		model.CrateVersion{Name: "serde", Version: "1.0.1"},
	)

	src := NewFileSource(path)
	versions, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0.0", versions[0].Version)
	assert.Equal(t, "1.0.1", versions[1].Version)
}

func TestFileSourceOnlyReturnsNewlyAppendedRecords(t *testing.T) {
	path := writeFixture(t, model.CrateVersion{Name: "serde", Version: "1.0.0"})

	src := NewFileSource(path)
	first, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second, "a second poll with nothing appended should return no records")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	data, err := json.Marshal(model.CrateVersion{Name: "serde", Version: "1.0.1"})
	require.NoError(t, err)
	_, err = f.Write(append(data, '\n'))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	third, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "1.0.1", third[0].Version)
}

func TestFileSourceMissingFileReturnsNoRecords(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "does-not-exist.ndjson"))
	versions, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestFileSourceRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o644))

	src := NewFileSource(path)
	_, err := src.Poll(context.Background())
	assert.Error(t, err)
}
