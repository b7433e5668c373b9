package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress of a long-running command.
type ProgressReporter interface {
	Start(total int64)
	Update(current, calls int64)
	Finish()
	Error(err error)
}

// SimpleProgress renders a single-line bar with the observed call rate.
type SimpleProgress struct {
	mu      sync.Mutex
	total   int64
	current int64
	calls   int64
	started time.Time
	writer  io.Writer
	now     func() time.Time
}

// NewProgressReporter creates a reporter writing to w, or to os.Stdout
// when w is nil.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stdout
	}
	return &SimpleProgress{writer: w, now: time.Now}
}

// Start resets the reporter for total units of work.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current, p.calls = 0, 0
	p.started = p.now()
	p.render()
}

// Update records current units done and calls made so far.
func (p *SimpleProgress) Update(current, calls int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = min(current, p.total)
	p.calls = calls
	p.render()
}

// Finish renders the completed bar and ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// Error reports a failure on its own line.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	var rate float64
	if elapsed := p.now().Sub(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.calls) / elapsed
	}

	fmt.Fprintf(p.writer, "\rProgress: [%s] %.1f%% (%d/%d) %.0f calls/s",
		bar, percent, p.current, p.total, rate)
}
