package upload

import (
	"io"
	"sync"

	"dialoguerec/internal/ports"
)

// progressTracker reports a non-decreasing percentage for one job. It always
// reports 0 when the job begins and again when it ends.
type progressTracker struct {
	report ports.ProgressFunc

	mu   sync.Mutex
	last int
	done bool
}

func newProgressTracker(report ports.ProgressFunc) *progressTracker {
	t := &progressTracker{report: report}
	t.emit(0)
	return t
}

func (t *progressTracker) update(sent, total int64) {
	if total <= 0 {
		return
	}
	percent := int(sent * 100 / total)
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	if t.done || percent <= t.last {
		t.mu.Unlock()
		return
	}
	t.last = percent
	t.mu.Unlock()

	t.emit(percent)
}

func (t *progressTracker) finish() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	t.emit(0)
}

func (t *progressTracker) emit(percent int) {
	if t.report != nil {
		t.report(percent)
	}
}

// countingReader feeds bytes-sent into the tracker as the transport reads.
type countingReader struct {
	r       io.Reader
	total   int64
	sent    int64
	tracker *progressTracker
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		c.tracker.update(c.sent, c.total)
	}
	return n, err
}
