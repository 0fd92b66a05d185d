package logging

import (
	"sync"
)

// CaptureObserver is invoked after the buffer's total line count changes.
// Observers run on the logging goroutine and must not block.
type CaptureObserver func(total int)

// CaptureBuffer is a bounded ring of recently formatted log lines. It backs
// the status display on the control channel: the gateway never re-reads its
// own log files, it serves the tail from here. The total counter keeps
// growing past the capacity so callers can report lifetime line counts.
type CaptureBuffer struct {
	mu        sync.Mutex
	lines     []string
	next      int
	filled    bool
	total     int
	observers []CaptureObserver
}

// DefaultCaptureCapacity bounds the capture buffer when no capacity is given.
const DefaultCaptureCapacity = 200

// NewCaptureBuffer creates a capture buffer holding at most capacity lines.
func NewCaptureBuffer(capacity int) *CaptureBuffer {
	if capacity <= 0 {
		capacity = DefaultCaptureCapacity
	}
	return &CaptureBuffer{
		lines: make([]string, capacity),
	}
}

// Append records one formatted line, evicting the oldest when full.
func (b *CaptureBuffer) Append(line string) {
	b.mu.Lock()
	b.lines[b.next] = line
	b.next++
	if b.next == len(b.lines) {
		b.next = 0
		b.filled = true
	}
	b.total++
	total := b.total
	observers := b.observers
	b.mu.Unlock()

	for _, observe := range observers {
		observe(total)
	}
}

// Recent returns up to n of the most recent lines, oldest first. n <= 0
// returns everything currently buffered.
func (b *CaptureBuffer) Recent(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.next
	if b.filled {
		size = len(b.lines)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]string, 0, n)
	start := b.next - n
	if start < 0 {
		start += len(b.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	return out
}

// Total returns the lifetime number of appended lines.
func (b *CaptureBuffer) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Observe registers an observer for line-count changes.
func (b *CaptureBuffer) Observe(observer CaptureObserver) {
	if observer == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, observer)
}
