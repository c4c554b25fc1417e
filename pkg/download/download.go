// Package download implements the I/O-bound download stage
// (spec.md §4.4): given a DownloadRequest, it fetches a crate archive
// over HTTP, streams it to a sharded on-disk path, records the
// TaskResult, and hands off a staged ExtractRequest to the next
// stage's bounded queue.
//
// The bare *http.Client follows the teacher's own choice for outbound
// HTTP (pkg/health/http.go's HTTPChecker uses a bare *http.Client)
// rather than reaching for a third-party HTTP client the teacher and
// the rest of the pack never use.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/criner-dev/criner/pkg/errs"
	"github.com/criner-dev/criner/pkg/extract"
	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/metrics"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/criner-dev/criner/pkg/timing"

	"bytes"
	"time"
)

const (
	processName    = "download"
	processVersion = "1.0.0"

	headerTimeout    = 30 * time.Second
	chunkTimeout     = 15 * time.Second
	chunkReadSize    = 64 * 1024
	separatorSegment = string(key.Sep)
)

// Request is the download stage's input: one crate archive to fetch.
type Request struct {
	CrateName    string
	CrateVersion string
	Kind         string // short static tag, e.g. "crate"
	URL          string
}

// Identify implements pipeline's identifiable, tagging log lines with
// this request's crate and version.
func (r Request) Identify() (string, string) { return r.CrateName, r.CrateVersion }

// Shard computes assets_dir/shard(name)/version/download:1.0.0.kind
// per spec.md §4.4/§6's sharding rule: 1-char names shard under
// "1/<name>", 2-char under "2/<name>", 3-char under "3/<first char>"
// (the full name is intentionally absent there), 4+-char names under
// "<first two>/<chars 3-4>/<name>".
func Shard(assetsDir, name, version, kind string) string {
	var shard string
	switch l := len(name); {
	case l == 1:
		shard = filepath.Join("1", name)
	case l == 2:
		shard = filepath.Join("2", name)
	case l == 3:
		shard = filepath.Join("3", name[:1])
	default:
		shard = filepath.Join(name[:2], name[2:4], name)
	}
	filename := fmt.Sprintf("%s%s%s.%s", processName, separatorSegment, processVersion, kind)
	return filepath.Join(assetsDir, shard, version, filename)
}

// Agent is a pipeline.Processor[Request] — see pkg/pipeline. It holds
// no per-request state: Driver runs Workers goroutines against one
// shared Agent, so everything Set/Process/ScheduleNext need is either
// immutable (AssetsDir, Client, ...) or derived fresh from req on each
// call, never stashed in a field.
type Agent struct {
	AssetsDir string
	Client    *http.Client
	Results   *ledger.ResultTable
	Out       chan<- extract.Request

	// ProgressOut is where each download's chunk-level pb/v3 bar
	// renders to. Defaults to io.Discard: the hierarchical tree
	// (pkg/progress) the Driver drives is the primary UI, this bar is
	// only useful piped to a terminal for a single foreground fetch.
	ProgressOut io.Writer
}

// NewAgent builds a download Agent with the teacher's default bare
// http.Client, timeout applied per-call rather than on the client
// itself (spec.md's 30s header / 15s chunk timeouts are finer-grained
// than a single client-wide timeout would allow).
func NewAgent(assetsDir string, results *ledger.ResultTable, out chan<- extract.Request) *Agent {
	return &Agent{
		AssetsDir:   assetsDir,
		Client:      &http.Client{},
		Results:     results,
		Out:         out,
		ProgressOut: io.Discard,
	}
}

// Set implements pipeline.Processor.
func (a *Agent) Set(req Request) (string, model.Task, string) {
	taskKey := key.AppendTask(new(bytes.Buffer), req.CrateName, req.CrateVersion, processName, processVersion)
	task := model.Task{Process: processName, ProcessVersion: processVersion}
	msg := fmt.Sprintf("downloading %s %s", req.CrateName, req.CrateVersion)
	return taskKey, task, msg
}

// Process implements pipeline.Processor. Every failure is reported
// under the same "Failed to download '<url>'" context (spec.md §8
// scenario 2, matching original_source's iobound.rs format!("Failed
// to download '{}'", url) wrapping), so the persisted attempt history
// reads identically regardless of which step inside Process failed.
func (a *Agent) Process(ctx context.Context, req Request) (string, error) {
	ctxMessage := fmt.Sprintf("Failed to download '%s'", req.URL)
	path := Shard(a.AssetsDir, req.CrateName, req.CrateVersion, req.Kind)

	var resp *http.Response
	err := timing.EnforceThreaded(ctx, headerTimeout, "download headers", func() error {
		httpReq, rerr := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
		if rerr != nil {
			return rerr
		}
		r, rerr := a.Client.Do(httpReq)
		if rerr != nil {
			return rerr
		}
		resp = r
		return nil
	})
	if err != nil {
		return ctxMessage, errs.Network(err)
	}
	defer resp.Body.Close()

	if resp.ContentLength < 0 {
		return ctxMessage, errs.InvalidHeader("expected content-length")
	}
	contentLength := uint32(resp.ContentLength)

	var contentType *string
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		contentType = &ct
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ctxMessage, errs.IO(err)
	}

	if err := a.streamToFile(ctx, path, resp.Body, int64(contentLength)); err != nil {
		return ctxMessage, err
	}

	result := model.ResultOfDownload(model.DownloadResult{
		Kind:          req.Kind,
		URL:           req.URL,
		ContentLength: contentLength,
		ContentType:   contentType,
	})
	resultKey := key.AppendResult(new(bytes.Buffer), req.CrateName, req.CrateVersion, processName, processVersion, "download")
	if _, err := a.Results.Upsert(resultKey, result); err != nil {
		return ctxMessage, errs.Storage(err)
	}

	return "", nil
}

// ScheduleNext implements pipeline.Processor: hand off the staged
// ExtractRequest, blocking on a full channel (intentional
// backpressure; a slow producer feeding a fast consumer is expected
// but the reverse must not deadlock the pipeline).
func (a *Agent) ScheduleNext(ctx context.Context, req Request) error {
	next := extract.Request{
		CrateName:    req.CrateName,
		CrateVersion: req.CrateVersion,
		DownloadPath: Shard(a.AssetsDir, req.CrateName, req.CrateVersion, req.Kind),
	}
	select {
	case a.Out <- next:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IdleMessage implements pipeline.Processor.
func (a *Agent) IdleMessage() string { return "waiting for download request" }

// streamToFile copies body to path in chunkReadSize reads, each
// bounded by chunkTimeout, driving a pb/v3 bar over a.ProgressOut
// alongside the byte-count metric (spec.md §4.5's chunked-transfer
// progress).
func (a *Agent) streamToFile(ctx context.Context, path string, body io.Reader, total int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.IO(err)
	}
	defer f.Close()

	bar := pb.StartNew(int(total))
	bar.SetWriter(a.ProgressOut)
	defer bar.Finish()

	buf := make([]byte, chunkReadSize)
	for {
		var n int
		readErr := timing.EnforceThreaded(ctx, chunkTimeout, "download chunk", func() error {
			var e error
			n, e = body.Read(buf)
			return e
		})
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return errs.IO(werr)
			}
			metrics.DownloadBytesTotal.Add(float64(n))
			bar.Add(n)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if _, isTagged := readErr.(*errs.Error); isTagged {
				return readErr
			}
			return errs.Network(readErr)
		}
	}
}
