package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrateMergeVersionDedupsAndSorts(t *testing.T) {
	var c Crate
	c.MergeVersion("1.2.0")
	c.MergeVersion("1.0.0")
	c.MergeVersion("1.10.0")
	c.MergeVersion("1.0.0") // duplicate

	assert.Equal(t, []string{"1.0.0", "1.10.0", "1.2.0"}, c.Versions)
}

func TestContextAddIsFieldwiseSum(t *testing.T) {
	a := Context{Counts: Counts{Crates: 1, CrateVersions: 2}}
	b := Context{Counts: Counts{Crates: 3, CrateVersions: 4}}
	sum := a.Add(b)
	assert.EqualValues(t, 4, sum.Counts.Crates)
	assert.EqualValues(t, 6, sum.Counts.CrateVersions)
}

func TestTaskStateMergeSequence(t *testing.T) {
	// AttemptsWithFailure(["a"]) -> InProgress(None) -> AttemptsWithFailure(["b"])
	s := StateAttemptsWithFailure([]string{"a"})

	s = Merge(s, StateInProgress(nil))
	require.Equal(t, InProgress, s.Kind)
	assert.Equal(t, []string{"a"}, s.Errors)

	s = Merge(s, StateAttemptsWithFailure([]string{"b"}))
	require.Equal(t, AttemptsWithFailure, s.Kind)
	assert.Equal(t, []string{"a", "b"}, s.Errors)
}

func TestTaskStateMergeAttemptsAccumulate(t *testing.T) {
	s := StateAttemptsWithFailure([]string{"a"})
	s = Merge(s, StateAttemptsWithFailure([]string{"b"}))
	assert.Equal(t, []string{"a", "b"}, s.Errors)
}

func TestTaskStateMergeOtherTakesNewVerbatim(t *testing.T) {
	s := StateNotStarted()
	s = Merge(s, StateComplete())
	assert.Equal(t, Complete, s.Kind)
}

func TestTaskStateMergePanicsOnPreloadedInProgress(t *testing.T) {
	s := StateAttemptsWithFailure([]string{"a"})
	assert.Panics(t, func() {
		Merge(s, StateInProgress([]string{"b"}))
	})
}
