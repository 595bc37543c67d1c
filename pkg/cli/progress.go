package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
}

// SimpleProgress renders a single-line bar, redrawn in place.
type SimpleProgress struct {
	mu      sync.Mutex
	label   string
	total   int64
	current int64
	writer  io.Writer
}

// NewProgressReporter creates a reporter writing to w, or os.Stderr when w
// is nil so progress never mixes with formatted results on stdout.
func NewProgressReporter(label string, w io.Writer) *SimpleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{label: label, writer: w}
}

// Start sets the number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.current = 0
	p.render()
}

// Update sets the number of completed items.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.render()
}

// Finish ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		fmt.Fprintln(p.writer)
	}
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}

	const width = 30
	filled := int(int64(width) * p.current / p.total)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	fmt.Fprintf(p.writer, "\r%s [%s] %d/%d", p.label, bar, p.current, p.total)
}
