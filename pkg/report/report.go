// Package report implements the waste report generator: given a
// crate-version's TaskResult::ExplodedCrate, it categorizes the
// archive's entries, flags categories that bloat the published
// package, and renders the result to a single HTML file.
//
// The table breakdown uses github.com/jedib0t/go-pretty/v6/table the
// same way greg-hellings-devdashboard/pkg/report/format/console.go
// uses it — the same pack dependency for the same "tabular breakdown
// of per-item data" concern. The page shell is stdlib html/template:
// no templating library appears anywhere in the retrieved pack, so
// this is the one place this component is justified stdlib (see
// DESIGN.md).
package report

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bytes"

	"github.com/criner-dev/criner/pkg/errs"
	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/metrics"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	// ProcessName and ProcessVersion identify this generator's output
	// in the task/report_done ledger, per spec.md §4.5.
	ProcessName    = "waste"
	ProcessVersion = "1.0.0"

	// wasteFraction is the share of total archive bytes a category
	// must exceed to be flagged as waste.
	wasteFraction = 0.10
)

// Category is one coarse bucket of archive content.
type Category string

const (
	CategoryDocs       Category = "docs"
	CategoryBuildMeta  Category = "build_metadata"
	CategoryTests      Category = "test_fixtures"
	CategoryBuildDir   Category = "build_artifacts"
	CategoryBinaryBlob Category = "binary_blobs"
	CategorySource     Category = "source"
)

// Breakdown is one category's byte contribution to the archive.
type Breakdown struct {
	Category Category
	Bytes    uint64
	Fraction float64
	Waste    bool
}

// Report is the generated artifact for one crate-version.
type Report struct {
	CrateName    string
	CrateVersion string
	TotalBytes   uint64
	Breakdown    []Breakdown
}

// HasWaste reports whether any category was flagged.
func (r Report) HasWaste() bool {
	for _, b := range r.Breakdown {
		if b.Waste {
			return true
		}
	}
	return false
}

// Generator implements spec.md §4.5's Generator[Report, DBResult]
// contract against the ledger's result/report_done tables. A
// Generator is shared across every report.Agent worker goroutine (see
// Agent below), so it holds no mutable per-call scratch state; every
// method that needs a key-building buffer allocates its own.
type Generator struct {
	Results    *ledger.ResultTable
	ReportDone *ledger.ReportDoneTable
	OutDir     string
}

// NewGenerator builds a report Generator writing HTML files under outDir.
func NewGenerator(results *ledger.ResultTable, reportDone *ledger.ReportDoneTable, outDir string) *Generator {
	return &Generator{Results: results, ReportDone: reportDone, OutDir: outDir}
}

// FQResultKey derives the fully-qualified key of the upstream extract
// result this generator consumes.
func (g *Generator) FQResultKey(crate, version string) string {
	return key.AppendResult(new(bytes.Buffer), crate, version, "extract", "1.0.0", "exploded_crate")
}

// GetResult fetches the upstream ExplodedCrateResult, returning ok=false
// if it isn't present yet (extract hasn't run, or failed).
func (g *Generator) GetResult(crate, version string) (model.ExplodedCrateResult, bool, error) {
	result, ok, err := g.Results.Get(g.FQResultKey(crate, version))
	if err != nil || !ok {
		return model.ExplodedCrateResult{}, ok, err
	}
	if result.ExplodedCrate == nil {
		return model.ExplodedCrateResult{}, false, nil
	}
	return *result.ExplodedCrate, true, nil
}

// GenerateSingleFile builds the Report for one crate-version, writes
// it as an HTML file under OutDir, and marks report_done. Returns the
// computed Report.
func (g *Generator) GenerateSingleFile(crate, version string, exploded model.ExplodedCrateResult) (Report, error) {
	rpt := Classify(crate, version, exploded)

	path := outputPath(g.OutDir, crate, version)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Report{}, errs.IO(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return Report{}, errs.IO(err)
	}
	defer f.Close()

	if err := Render(f, rpt); err != nil {
		return Report{}, errs.IO(err)
	}

	if err := g.ReportDone.SetDone(g.resultDoneKey(crate, version)); err != nil {
		return Report{}, errs.Storage(err)
	}
	metrics.ReportsGeneratedTotal.Inc()

	return rpt, nil
}

// resultDoneKey derives the report_done key for (crate, version).
func (g *Generator) resultDoneKey(crate, version string) string {
	return key.AppendResult(new(bytes.Buffer), crate, version, ProcessName, ProcessVersion, "done")
}

// Request is the report stage's input: an already-extracted crate to
// classify and render (spec.md §6's cpu_o_bound_processors queue).
type Request struct {
	CrateName    string
	CrateVersion string
	Exploded     model.ExplodedCrateResult
}

// Identify implements pipeline's identifiable, tagging log lines with
// this request's crate and version.
func (r Request) Identify() (string, string) { return r.CrateName, r.CrateVersion }

// Agent is a pipeline.Processor[Request] — see pkg/pipeline. It wraps
// a Generator as the report stage's terminal pipeline step: Driver
// runs Workers goroutines against one shared Agent, each call
// operating only on its own req, so no cross-call state is needed
// beyond the Generator's own ledger handles.
type Agent struct {
	Generator *Generator
}

// NewAgent builds a report Agent over an existing Generator.
func NewAgent(generator *Generator) *Agent {
	return &Agent{Generator: generator}
}

// Set implements pipeline.Processor.
func (a *Agent) Set(req Request) (string, model.Task, string) {
	taskKey := key.AppendTask(new(bytes.Buffer), req.CrateName, req.CrateVersion, ProcessName, ProcessVersion)
	task := model.Task{Process: ProcessName, ProcessVersion: ProcessVersion}
	msg := fmt.Sprintf("reporting %s %s", req.CrateName, req.CrateVersion)
	return taskKey, task, msg
}

// Process implements pipeline.Processor: classifies and renders the
// waste report, reusing the same Classify/Render the ticker-driven
// sweep in pkg/engine falls back on for rows this queue never saw
// (e.g. a resumed run's already-extracted, pre-queue backlog).
func (a *Agent) Process(ctx context.Context, req Request) (string, error) {
	if _, err := a.Generator.GenerateSingleFile(req.CrateName, req.CrateVersion, req.Exploded); err != nil {
		return "generating waste report", err
	}
	return "", nil
}

// ScheduleNext implements pipeline.Processor. Report is the final
// stage: nothing downstream to hand off to.
func (a *Agent) ScheduleNext(ctx context.Context, req Request) error { return nil }

// IdleMessage implements pipeline.Processor.
func (a *Agent) IdleMessage() string { return "waiting for report request" }

// Classify buckets every archive entry into a Category by path
// heuristics and flags categories exceeding wasteFraction of the
// total archive size.
func Classify(crate, version string, exploded model.ExplodedCrateResult) Report {
	totals := make(map[Category]uint64)
	var total uint64

	for _, entry := range exploded.EntriesMetaData {
		cat := categorize(string(entry.Path))
		totals[cat] += entry.Size
		total += entry.Size
	}

	categories := make([]Category, 0, len(totals))
	for c := range totals {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	breakdown := make([]Breakdown, 0, len(categories))
	for _, c := range categories {
		bytesN := totals[c]
		fraction := 0.0
		if total > 0 {
			fraction = float64(bytesN) / float64(total)
		}
		breakdown = append(breakdown, Breakdown{
			Category: c,
			Bytes:    bytesN,
			Fraction: fraction,
			Waste:    c != CategorySource && fraction > wasteFraction,
		})
	}

	return Report{CrateName: crate, CrateVersion: version, TotalBytes: total, Breakdown: breakdown}
}

func categorize(path string) Category {
	lower := strings.ToLower(path)
	base := lower
	if i := strings.LastIndexByte(lower, '/'); i >= 0 {
		base = lower[i+1:]
	}

	switch {
	case strings.Contains(lower, "/target/"), strings.HasPrefix(lower, "target/"):
		return CategoryBuildDir
	case strings.Contains(lower, "/tests/"), strings.HasPrefix(lower, "tests/"), strings.Contains(lower, "/testdata/"):
		return CategoryTests
	case strings.HasSuffix(base, ".md"), strings.HasPrefix(base, "readme"), strings.Contains(lower, "/doc/"), strings.Contains(lower, "/docs/"):
		return CategoryDocs
	case base == "cargo.toml", base == "cargo.lock", strings.HasPrefix(base, "license"), base == ".gitignore":
		return CategoryBuildMeta
	case hasBinaryExtension(base):
		return CategoryBinaryBlob
	default:
		return CategorySource
	}
}

func hasBinaryExtension(name string) bool {
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".so", ".dylib", ".dll", ".a", ".o", ".zip", ".tar", ".gz"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>waste report: {{.CrateName}} {{.CrateVersion}}</title></head>
<body>
<h1>{{.CrateName}} {{.CrateVersion}}</h1>
<p>Total archive bytes: {{.TotalBytes}}</p>
<pre>{{.Table}}</pre>
</body>
</html>
`

var page = template.Must(template.New("waste_report").Parse(pageTemplate))

// Render writes rpt as a single HTML page to w: a go-pretty table
// breakdown wrapped by an html/template page skeleton.
func Render(w io.Writer, rpt Report) error {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Category", "Bytes", "Fraction", "Waste"})
	for _, b := range rpt.Breakdown {
		tw.AppendRow(table.Row{b.Category, b.Bytes, fmt.Sprintf("%.1f%%", b.Fraction*100), b.Waste})
	}
	tw.SetStyle(table.StyleLight)

	data := struct {
		CrateName    string
		CrateVersion string
		TotalBytes   uint64
		Table        string
	}{rpt.CrateName, rpt.CrateVersion, rpt.TotalBytes, tw.Render()}

	return page.Execute(w, data)
}

func outputPath(outDir, crate, version string) string {
	return filepath.Join(outDir, crate, version, "waste.html")
}
