// Package extract implements the CPU-bound extract stage
// (spec.md §4.5): it walks a downloaded .crate archive (a gzipped tar)
// entry by entry, records every entry's header, and captures the bytes
// (at most 1 MiB each) of a small set of "interesting" files (README, LICENSE,
// Cargo.toml/Cargo.lock) for the waste report to inspect.
//
// archive/tar and compress/gzip are stdlib: no third-party tar/gzip
// implementation appears anywhere in the retrieved pack (see
// DESIGN.md), so this is the one stdlib domain component in the
// pipeline.
package extract

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"bytes"

	"github.com/criner-dev/criner/pkg/errs"
	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/criner-dev/criner/pkg/report"
)

const (
	processName    = "extract"
	processVersion = "1.0.0"

	// maxSelectedEntryBytes bounds memory when capturing an
	// "interesting" entry's bytes; README/LICENSE/Cargo.* files are
	// assumed small text files per original_source's implicit
	// assumption.
	maxSelectedEntryBytes = 1 << 20 // 1 MiB
)

// Request is the extract stage's input: a downloaded archive to walk.
type Request struct {
	CrateName    string
	CrateVersion string
	DownloadPath string
}

// Identify implements pipeline's identifiable, tagging log lines with
// this request's crate and version.
func (r Request) Identify() (string, string) { return r.CrateName, r.CrateVersion }

// Agent is a pipeline.Processor[Request] — see pkg/pipeline. Driver
// runs Workers goroutines against one shared Agent, so it holds no
// per-request field directly; the one piece of state that must cross
// from Process to ScheduleNext (the exploded result) lives in a
// sync.Map keyed by (crate, version), never a bare struct field, since
// concurrent workers never share a key at the same time but do share
// the Agent.
type Agent struct {
	Results *ledger.ResultTable
	Out     chan<- report.Request

	pending sync.Map // string "crate:version" -> model.ExplodedCrateResult
}

// NewAgent builds an extract Agent. out is the bounded report-stage
// queue a successful extract hands its result off to; pass nil to run
// extract as a terminal stage (tests that don't exercise reporting).
func NewAgent(results *ledger.ResultTable, out chan<- report.Request) *Agent {
	return &Agent{Results: results, Out: out}
}

func pendingKey(crate, version string) string {
	return crate + "\x00" + version
}

// Set implements pipeline.Processor.
func (a *Agent) Set(req Request) (string, model.Task, string) {
	taskKey := key.AppendTask(new(bytes.Buffer), req.CrateName, req.CrateVersion, processName, processVersion)
	task := model.Task{Process: processName, ProcessVersion: processVersion}
	msg := fmt.Sprintf("extracting %s %s", req.CrateName, req.CrateVersion)
	return taskKey, task, msg
}

// Process implements pipeline.Processor. It is CPU-bound (tar parsing,
// gzip inflation) so, unlike download, it does not race against a
// timeout — the pipeline's backpressure from the bounded extract queue
// is the control knob on throughput.
func (a *Agent) Process(ctx context.Context, req Request) (string, error) {
	f, err := os.Open(req.DownloadPath)
	if err != nil {
		return "opening downloaded archive", errs.IO(err)
	}
	defer f.Close()

	result, err := Walk(f)
	if err != nil {
		return "walking archive", err
	}

	resultKey := key.AppendResult(new(bytes.Buffer), req.CrateName, req.CrateVersion, processName, processVersion, "exploded_crate")
	if _, err := a.Results.Upsert(resultKey, model.ResultOfExplodedCrate(result)); err != nil {
		return "recording result", errs.Storage(err)
	}

	a.pending.Store(pendingKey(req.CrateName, req.CrateVersion), result)
	return "", nil
}

// ScheduleNext implements pipeline.Processor: hands the just-extracted
// result off to the bounded report queue (spec.md §6's
// cpu_o_bound_processors stage). A nil Out (tests exercising extract
// alone) makes this a no-op, matching spec.md §4.3's allowance for a
// terminal stage.
func (a *Agent) ScheduleNext(ctx context.Context, req Request) error {
	if a.Out == nil {
		return nil
	}
	v, ok := a.pending.LoadAndDelete(pendingKey(req.CrateName, req.CrateVersion))
	if !ok {
		return fmt.Errorf("no pending result for %s %s", req.CrateName, req.CrateVersion)
	}
	next := report.Request{
		CrateName:    req.CrateName,
		CrateVersion: req.CrateVersion,
		Exploded:     v.(model.ExplodedCrateResult),
	}
	select {
	case a.Out <- next:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IdleMessage implements pipeline.Processor.
func (a *Agent) IdleMessage() string { return "waiting for extract request" }

// Walk reads a gzipped tar stream and builds an ExplodedCrateResult:
// every entry's header goes into EntriesMetaData; README*, LICENSE*,
// and Cargo.toml/Cargo.lock entries additionally have their bytes
// captured into SelectedEntries.
func Walk(r io.Reader) (model.ExplodedCrateResult, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return model.ExplodedCrateResult{}, errs.IO(fmt.Errorf("opening gzip stream: %w", err))
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	result := model.ExplodedCrateResult{}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.ExplodedCrateResult{}, errs.IO(fmt.Errorf("reading tar entry: %w", err))
		}

		header := model.TarHeader{
			Path:      []byte(hdr.Name),
			Size:      uint64(hdr.Size),
			EntryType: uint8(hdr.Typeflag),
		}
		result.EntriesMetaData = append(result.EntriesMetaData, header)

		if hdr.Typeflag != tar.TypeReg || !isInteresting(hdr.Name) {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxSelectedEntryBytes))
		if err != nil {
			return model.ExplodedCrateResult{}, errs.IO(fmt.Errorf("reading entry %q: %w", hdr.Name, err))
		}
		result.SelectedEntries = append(result.SelectedEntries, model.SelectedEntry{Header: header, Data: data})
	}

	return result, nil
}

// isInteresting reports whether a tar entry's base name matches one of
// the small fixed set of files the waste report inspects.
func isInteresting(name string) bool {
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	switch {
	case strings.HasPrefix(base, "README"):
		return true
	case strings.HasPrefix(base, "LICENSE"):
		return true
	case base == "Cargo.toml", base == "Cargo.lock":
		return true
	default:
		return false
	}
}
