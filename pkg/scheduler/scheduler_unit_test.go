package scheduler

import (
	"testing"
	"time"

	"github.com/criner-dev/criner/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestNeedsWorkGate(t *testing.T) {
	startedAt := time.Now()

	cases := []struct {
		name string
		task model.Task
		want bool
	}{
		{"not started", model.Task{State: model.StateNotStarted()}, true},
		{"complete", model.Task{State: model.StateComplete()}, false},
		{"in progress before start (stale)", model.Task{StoredAt: startedAt.Add(-time.Minute), State: model.StateInProgress(nil)}, true},
		{"in progress after start (owned)", model.Task{StoredAt: startedAt.Add(time.Minute), State: model.StateInProgress(nil)}, false},
		{"failures below cap", model.Task{State: model.StateAttemptsWithFailure([]string{"e1"})}, true},
		{"failures at cap", model.Task{State: model.StateAttemptsWithFailure([]string{"e1", "e2", "e3"})}, false},
		{"failures above cap", model.Task{State: model.StateAttemptsWithFailure([]string{"e1", "e2", "e3", "e4"})}, false},
	}

	s := &Scheduler{startedAt: startedAt}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.needsWork(tt.task))
		})
	}
}
