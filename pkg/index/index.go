// Package index defines the boundary the miner depends on for new
// upstream crate-version records. The real crates.io index-diff
// reader (a bare git clone, walked for commits) is out of scope per
// spec.md §1's Non-goals; this package is only the seam: a
// Source interface, a deterministic file-backed fixture for
// tests and local development, and a no-op for when no source is
// configured.
package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/criner-dev/criner/pkg/errs"
	"github.com/criner-dev/criner/pkg/model"
)

// Source delivers newly-seen CrateVersion records. A real
// implementation would walk a git index clone's commit log since the
// last-seen commit; this module only defines what callers depend on.
type Source interface {
	// Poll returns every CrateVersion published since the last call.
	// Implementations may return an empty slice when nothing is new.
	Poll(ctx context.Context) ([]model.CrateVersion, error)
}

// NullSource is a Source that never reports any new crate versions.
// Used when the miner runs without a configured upstream (e.g. to
// exercise the pipeline on a pre-seeded ledger alone).
type NullSource struct{}

// Poll implements Source.
func (NullSource) Poll(ctx context.Context) ([]model.CrateVersion, error) { return nil, nil }

// FileSource reads newline-delimited JSON CrateVersion records from a
// fixture file, one Poll call returning everything at or past its
// current read offset. It exists as the placeholder `mine
// --index-fixture` wires up in place of the real index-diff reader, and
// as a way for tests to feed the scheduler a deterministic crate
// universe.
type FileSource struct {
	path   string
	offset int64
}

// NewFileSource builds a FileSource over a newline-delimited JSON file
// of model.CrateVersion records.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Poll implements Source: it reads every full line appended to the
// fixture file since the last call and decodes each as a CrateVersion.
func (s *FileSource) Poll(ctx context.Context) ([]model.CrateVersion, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO(err)
	}
	defer f.Close()

	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return nil, errs.IO(err)
	}

	var versions []model.CrateVersion
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var consumed int64
	for scanner.Scan() {
		if ctx.Err() != nil {
			return versions, ctx.Err()
		}
		line := scanner.Bytes()
		consumed += int64(len(line)) + 1 // +1 for the newline Scanner strips
		if len(line) == 0 {
			continue
		}
		var cv model.CrateVersion
		if err := json.Unmarshal(line, &cv); err != nil {
			return nil, errs.Serialization(fmt.Errorf("decoding index fixture line: %w", err))
		}
		versions = append(versions, cv)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.IO(err)
	}

	s.offset += consumed
	return versions, nil
}
