package backfill

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress reports how many documents have been embedded.
// It is safe for concurrent use by batch workers.
type Progress struct {
	mu       sync.Mutex
	writer   io.Writer
	total    int
	done     int
	interval int
	reported int
	started  time.Time
	running  bool
}

// NewProgress creates a reporter for total documents that prints every
// interval documents. A nil writer discards output.
func NewProgress(writer io.Writer, total, interval int) *Progress {
	if writer == nil {
		writer = io.Discard
	}
	return &Progress{
		writer:   writer,
		total:    total,
		interval: max(interval, 1),
	}
}

// Start resets the counters and the clock.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = time.Now()
	p.running = true
	p.done = 0
	p.reported = 0
}

// Add records delta more finished documents.
func (p *Progress) Add(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.done = min(p.done+delta, p.total)
	if p.done-p.reported >= p.interval {
		p.print()
		p.reported = p.done
	}
}

// Done reports the number of finished documents so far.
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Finish prints the final line. It does not claim documents that were never finished.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	p.print()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start.
func (p *Progress) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// print must be called with the lock held.
func (p *Progress) print() {
	rate := 0.0
	if secs := time.Since(p.started).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	percent := 100.0
	if p.total > 0 {
		percent = float64(p.done) / float64(p.total) * 100
	}
	fmt.Fprintf(p.writer, "\rEmbedded %d/%d (%.1f%%) - %.1f documents/s", p.done, p.total, percent, rate)
}
