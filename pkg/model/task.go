package model

import "time"

// TaskStateKind is the tag of the TaskState variant.
type TaskStateKind uint8

const (
	// NotStarted is the zero value: a task never attempted.
	NotStarted TaskStateKind = iota
	// InProgress means a worker currently owns the task. Errors, if
	// non-nil, carries the failure history from before this attempt.
	InProgress
	// AttemptsWithFailure carries the history of error messages from
	// every failed attempt so far. Always non-empty.
	AttemptsWithFailure
	// Complete means the task finished successfully.
	Complete
)

// String renders the kind the way metrics and log fields want it:
// lowercase, stable across releases.
func (k TaskStateKind) String() string {
	switch k {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case AttemptsWithFailure:
		return "attempts_with_failure"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// TaskState is the tagged state of a Task. Errors is populated for
// InProgress (optionally, carrying prior failures) and for
// AttemptsWithFailure (always, non-empty).
type TaskState struct {
	Kind   TaskStateKind `json:"kind"`
	Errors []string      `json:"errors,omitempty"`
}

// StateNotStarted is the default state.
func StateNotStarted() TaskState { return TaskState{Kind: NotStarted} }

// StateInProgress marks a task as claimed by a worker. previousErrors
// may be nil if this is the task's first attempt.
func StateInProgress(previousErrors []string) TaskState {
	return TaskState{Kind: InProgress, Errors: previousErrors}
}

// StateAttemptsWithFailure records a failed attempt. errs must be
// non-empty.
func StateAttemptsWithFailure(errs []string) TaskState {
	return TaskState{Kind: AttemptsWithFailure, Errors: errs}
}

// StateComplete marks a task as successfully finished.
func StateComplete() TaskState { return TaskState{Kind: Complete} }

// Merge applies the state-merge rule: new is stored atop existing.
//
//	(AttemptsWithFailure(a), AttemptsWithFailure(b)) -> AttemptsWithFailure(a++b)
//	(AttemptsWithFailure(a), InProgress(nil))        -> InProgress(a)
//	(InProgress(a), AttemptsWithFailure(b))           -> AttemptsWithFailure(a++b)
//	anything else                                     -> new, verbatim
//
// (AttemptsWithFailure, InProgress(non-nil)) is caller error: a fresh
// in-progress attempt must not already carry failures from a state it
// hasn't merged with yet. Merge panics on that combination rather than
// silently accepting inconsistent history.
func Merge(existing, new TaskState) TaskState {
	switch {
	case existing.Kind == AttemptsWithFailure && new.Kind == AttemptsWithFailure:
		return StateAttemptsWithFailure(append(append([]string(nil), existing.Errors...), new.Errors...))
	case existing.Kind == AttemptsWithFailure && new.Kind == InProgress && new.Errors == nil:
		return StateInProgress(append([]string(nil), existing.Errors...))
	case existing.Kind == AttemptsWithFailure && new.Kind == InProgress && new.Errors != nil:
		panic("model: a fresh InProgress must not be preloaded with failed attempts")
	case existing.Kind == InProgress && new.Kind == AttemptsWithFailure:
		return StateAttemptsWithFailure(append(append([]string(nil), existing.Errors...), new.Errors...))
	default:
		return new
	}
}

// Task describes one unit of work of kind Process at revision
// ProcessVersion against a (crate, version).
type Task struct {
	StoredAt       time.Time `json:"stored_at"`
	Process        string    `json:"process"`
	ProcessVersion string    `json:"process_version"`
	State          TaskState `json:"state"`
}

// TaskResultKind is the tag of the TaskResult variant.
type TaskResultKind uint8

const (
	// ResultNone is the zero value, used only as a table default.
	ResultNone TaskResultKind = iota
	ResultDownload
	ResultExplodedCrate
)

// DownloadResult is the structured output of the download stage.
type DownloadResult struct {
	Kind          string  `json:"kind"`
	URL           string  `json:"url"`
	ContentLength uint32  `json:"content_length"`
	ContentType   *string `json:"content_type,omitempty"`
}

// SelectedEntry pairs a tar entry's header with its captured bytes.
type SelectedEntry struct {
	Header TarHeader `json:"header"`
	Data   []byte    `json:"data"`
}

// ExplodedCrateResult is the structured output of the extract stage.
type ExplodedCrateResult struct {
	EntriesMetaData []TarHeader     `json:"entries_meta_data"`
	SelectedEntries []SelectedEntry `json:"selected_entries"`
}

// TaskResult is the append-only-variant output of a completed task.
type TaskResult struct {
	Kind          TaskResultKind       `json:"kind"`
	Download      *DownloadResult      `json:"download,omitempty"`
	ExplodedCrate *ExplodedCrateResult `json:"exploded_crate,omitempty"`
}

// ResultOfDownload wraps a DownloadResult into a TaskResult.
func ResultOfDownload(d DownloadResult) TaskResult {
	return TaskResult{Kind: ResultDownload, Download: &d}
}

// ResultOfExplodedCrate wraps an ExplodedCrateResult into a TaskResult.
func ResultOfExplodedCrate(e ExplodedCrateResult) TaskResult {
	return TaskResult{Kind: ResultExplodedCrate, ExplodedCrate: &e}
}
