package upload

import (
	"sync"
	"time"
)

// Progress is the single shape both local byte counting and server-side
// verification events are folded into.
type Progress struct {
	Stage         string
	Pct           float64
	SentBytes     int64
	ReceivedBytes int64
}

// progressThrottle coalesces progress callbacks by time. Updates inside
// the interval are held, not dropped: the latest value is delivered
// when the interval elapses or Flush is called.
type progressThrottle struct {
	interval time.Duration
	fn       func(Progress)

	mu      sync.Mutex
	last    time.Time
	pending *Progress
	timer   *time.Timer
}

func newProgressThrottle(interval time.Duration, fn func(Progress)) *progressThrottle {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &progressThrottle{interval: interval, fn: fn}
}

func (p *progressThrottle) Emit(pr Progress) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	now := time.Now()
	if since := now.Sub(p.last); since >= p.interval {
		p.last = now
		p.pending = nil
		p.mu.Unlock()
		p.fn(pr)
		return
	}
	p.pending = &pr
	if p.timer == nil {
		wait := p.interval - now.Sub(p.last)
		p.timer = time.AfterFunc(wait, p.fire)
	}
	p.mu.Unlock()
}

// Flush delivers any held update immediately.
func (p *progressThrottle) Flush() {
	p.fire()
}

func (p *progressThrottle) fire() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	pr := p.pending
	p.pending = nil
	if pr != nil {
		p.last = time.Now()
	}
	p.mu.Unlock()
	if pr != nil && p.fn != nil {
		p.fn(*pr)
	}
}
