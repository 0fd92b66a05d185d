// Package framing turns an arriving byte stream into discrete message lines.
// It exists because the primary channel cannot trust its peer to terminate
// messages: a missing line feed must cost at most the configured buffer cap,
// never unbounded memory.
package framing

import (
	"bytes"

	gwerrors "github.com/ajitpratap0/mcp-gateway-go/pkg/errors"
)

// DefaultBufferLimit caps the accumulation buffer at 1 MiB.
const DefaultBufferLimit = 1 << 20

// Reader accumulates chunks in arrival order and yields complete, non-blank
// lines. A trailing partial line is retained for the next chunk. Reader is
// not safe for concurrent use; the dispatch loop owns it.
type Reader struct {
	limit int
	buf   []byte
}

// NewReader creates a Reader with the given buffer cap. A non-positive limit
// selects DefaultBufferLimit.
func NewReader(limit int) *Reader {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &Reader{limit: limit}
}

// Feed consumes one chunk and returns the complete lines it unlocked, in
// order. When the retained remainder would exceed the cap, the buffer is
// discarded and an overflow error is returned alongside any lines already
// extracted; the reader stays usable.
func (r *Reader) Feed(chunk []byte) ([][]byte, error) {
	r.buf = append(r.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(r.buf[:i])
		r.buf = r.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		// Copy out: the backing array is about to be reused.
		out := make([]byte, len(line))
		copy(out, line)
		lines = append(lines, out)
	}

	if len(r.buf) > r.limit {
		r.buf = nil
		return lines, gwerrors.BufferOverflow(r.limit)
	}

	return lines, nil
}

// Pending returns the number of buffered bytes awaiting a line terminator.
func (r *Reader) Pending() int {
	return len(r.buf)
}

// Reset discards any retained partial line.
func (r *Reader) Reset() {
	r.buf = nil
}
