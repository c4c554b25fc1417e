package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestItemAdvanceAndDoneDoNotPanic(t *testing.T) {
	var buf bytes.Buffer
	tree := NewTree(&buf, 10*time.Millisecond)

	item := tree.Item("serde-1.0.3:download", 1024)
	item.Advance(512)
	item.Advance(512)
	item.Done()

	assert.NotNil(t, item)
}

func TestItemErroredDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	tree := NewTree(&buf, 10*time.Millisecond)

	item := tree.Item("serde-1.0.3:extract", 10)
	item.Advance(3)
	item.Errored()
}

func TestTreeTracksMultipleItemsIndependently(t *testing.T) {
	var buf bytes.Buffer
	tree := NewTree(&buf, 10*time.Millisecond)

	a := tree.Item("a", 10)
	b := tree.Item("b", 20)

	a.Advance(5)
	b.Advance(20)
	b.Done()

	assert.Len(t, tree.items, 2)
}
