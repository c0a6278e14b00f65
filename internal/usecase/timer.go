package usecase

import (
	"fmt"
	"sync"
	"time"

	"dialoguerec/internal/ports"
)

// DefaultCeiling is the maximum recording length in seconds.
const DefaultCeiling = 30 * 60

// sessionTimer counts recorded seconds. One loop runs per recording stretch;
// pausing stops the loop and resuming starts a new one from the frozen value.
type sessionTimer struct {
	newTicker ports.TickerFactory
	interval  time.Duration
	ceiling   int
	onTick    func(elapsed int)
	onCeiling func()

	mu      sync.Mutex
	elapsed int
	stop    chan struct{}
	done    chan struct{}
}

func newSessionTimer(newTicker ports.TickerFactory, interval time.Duration, ceiling int, onTick func(int), onCeiling func()) *sessionTimer {
	if newTicker == nil {
		newTicker = systemTicker
	}
	if interval <= 0 {
		interval = time.Second
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &sessionTimer{
		newTicker: newTicker,
		interval:  interval,
		ceiling:   ceiling,
		onTick:    onTick,
		onCeiling: onCeiling,
	}
}

// Start launches the tick loop. It is a no-op while a loop is running.
func (t *sessionTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	go t.loop(t.newTicker(t.interval), stop, done)
}

// Stop cancels the loop and waits for it to exit. After Stop returns no
// further tick is delivered. Safe to call repeatedly and from onCeiling.
func (t *sessionTimer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Elapsed returns the recorded seconds so far.
func (t *sessionTimer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

func (t *sessionTimer) loop(ticker ports.Ticker, stop, done chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			close(done)
			return
		case <-ticker.C():
		}

		t.mu.Lock()
		if t.stop != stop {
			// Stop detached this loop between the tick and the lock.
			t.mu.Unlock()
			close(done)
			return
		}
		t.elapsed++
		elapsed := t.elapsed
		t.mu.Unlock()

		if t.onTick != nil {
			t.onTick(elapsed)
		}
		if elapsed < t.ceiling {
			continue
		}

		t.mu.Lock()
		owned := t.stop == stop
		if owned {
			t.stop, t.done = nil, nil
		}
		t.mu.Unlock()

		close(done)
		if owned && t.onCeiling != nil {
			t.onCeiling()
		}
		return
	}
}

// FormatElapsed renders seconds as zero padded mm:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func systemTicker(interval time.Duration) ports.Ticker {
	return timeTicker{t: time.NewTicker(interval)}
}
