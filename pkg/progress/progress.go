// Package progress is the hierarchical progress reporter the engine
// hands to each pipeline stage: a Tree of named
// Items, each trackable independently, rendered with go-pretty's
// progress writer the same way pkg/report renders tables with
// go-pretty's table writer — one corpus dependency, two components.
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// Tree owns a go-pretty progress.Writer and the set of live Items
// rendering against it. A Tree is safe for concurrent use by multiple
// pipeline stages.
type Tree struct {
	mu     sync.Mutex
	writer progress.Writer
	items  map[string]*Item
}

// NewTree creates a Tree that renders to w at the given refresh rate.
// Call Render in its own goroutine before adding items.
func NewTree(w io.Writer, refresh time.Duration) *Tree {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetUpdateFrequency(refresh)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true
	pw.Style().Visibility.Speed = false
	pw.Style().Visibility.TrackerOverall = true

	return &Tree{writer: pw, items: make(map[string]*Item)}
}

// Render blocks, driving the underlying progress.Writer's redraw loop,
// until Stop is called. Run it in its own goroutine.
func (t *Tree) Render() { t.writer.Render() }

// Stop halts rendering.
func (t *Tree) Stop() { t.writer.Stop() }

// Item adds a new trackable unit of work named label with the given
// total (e.g. bytes-to-download, or entries-to-walk). It starts at
// zero and is removed from the tree once marked done or errored.
func (t *Tree) Item(label string, total int64) *Item {
	tracker := &progress.Tracker{Message: label, Total: total, Units: progress.UnitsDefault}
	t.writer.AppendTracker(tracker)

	item := &Item{tracker: tracker}
	t.mu.Lock()
	t.items[label] = item
	t.mu.Unlock()
	return item
}

// Item is one line of the progress tree: a single crate/version/stage
// unit of work.
type Item struct {
	tracker *progress.Tracker
}

// Advance increments the item's completed count by n.
func (i *Item) Advance(n int64) { i.tracker.Increment(n) }

// SetMessage updates the item's displayed label, e.g. to a
// Processor's idle_message once a worker parks waiting for work.
func (i *Item) SetMessage(msg string) { i.tracker.UpdateMessage(msg) }

// Done marks the item complete.
func (i *Item) Done() { i.tracker.MarkAsDone() }

// Errored marks the item as failed; go-pretty renders it in red.
func (i *Item) Errored() { i.tracker.MarkAsErrored() }
