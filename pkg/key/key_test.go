package key

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendEntity(t *testing.T) {
	var scratch bytes.Buffer
	assert.Equal(t, "serde:1.0.0", AppendEntity(&scratch, "serde", "1.0.0"))
}

func TestAppendTask(t *testing.T) {
	var scratch bytes.Buffer
	assert.Equal(t, "serde:1.0.0:download:1.0.0", AppendTask(&scratch, "serde", "1.0.0", "download", "1.0.0"))
}

func TestAppendResult(t *testing.T) {
	var scratch bytes.Buffer
	got := AppendResult(&scratch, "serde", "1.0.0", "download", "1.0.0", "Download")
	assert.Equal(t, "serde:1.0.0:download:1.0.0:Download", got)
}

// Reusing the scratch buffer must not corrupt previously returned keys:
// bytes.Buffer.String() copies, unlike strings.Builder.String().
func TestScratchReuseDoesNotCorruptPriorKeys(t *testing.T) {
	var scratch bytes.Buffer
	first := AppendEntity(&scratch, "a", "1.0.0")
	second := AppendEntity(&scratch, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "2.0.0")
	assert.Equal(t, "a:1.0.0", first)
	assert.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb:2.0.0", second)
}
