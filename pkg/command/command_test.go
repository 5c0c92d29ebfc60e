package command

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testHasSh bool

func init() {
	if _, err := exec.LookPath("sh"); err == nil {
		testHasSh = true
	}
}

type mockLog struct{}

func (m *mockLog) Debugf(format string, args ...interface{}) {}

func TestRunOutputSelection(t *testing.T) {
	if !testHasSh {
		t.Skip("sh not found, skipping")
	}

	r := New(new(mockLog), 0)
	dir := os.TempDir()

	res := r.Run(context.Background(), dir, "sh", "-c", "echo '  out  '; echo err >&2")
	assert.True(t, res.OK)
	assert.Equal(t, "out", res.Output, "stdout wins when non-empty")

	res = r.Run(context.Background(), dir, "sh", "-c", "echo ' only err ' >&2")
	assert.True(t, res.OK)
	assert.Equal(t, "only err", res.Output, "stderr is used when stdout is empty")

	res = r.Run(context.Background(), dir, "sh", "-c", "echo boom >&2; exit 3")
	assert.False(t, res.OK)
	assert.Equal(t, "boom", res.Output)

	res = r.Run(context.Background(), dir, "sh", "-c", "exit 1")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Output, "the error description is used when nothing was printed")
}

func TestRunMissingBinary(t *testing.T) {
	r := New(nil, 0)
	res := r.Run(context.Background(), os.TempDir(), "vibe-git-hopefully-missing-binary")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Output)
}

func TestRunTimeout(t *testing.T) {
	if !testHasSh {
		t.Skip("sh not found, skipping")
	}

	r := New(new(mockLog), 100*time.Millisecond)
	start := time.Now()
	res := r.Run(context.Background(), os.TempDir(), "sleep", "5")
	assert.False(t, res.OK)
	assert.Less(t, int64(time.Since(start)), int64(4*time.Second))
}
