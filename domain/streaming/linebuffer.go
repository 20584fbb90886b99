// Package streaming provides utilities for relaying server-sent event streams.
package streaming

import "bytes"

// LineBuffer accumulates raw stream bytes and yields complete lines.
// The trailing, possibly incomplete line is always held back until its
// newline arrives, so a chunk boundary inside a frame never splits it.
type LineBuffer struct {
	pending []byte
}

// Push appends chunk and returns every line completed by it, without
// the line terminator. A "\r\n" terminator is accepted as well as "\n".
func (b *LineBuffer) Push(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(b.pending, '\n')
		if idx < 0 {
			break
		}
		line := b.pending[:idx]
		line = bytes.TrimSuffix(line, []byte("\r"))
		lines = append(lines, string(line))
		b.pending = b.pending[idx+1:]
	}

	// Reclaim the consumed prefix once nothing is pending.
	if len(b.pending) == 0 {
		b.pending = b.pending[:0:0]
	}
	return lines
}

// Pending returns the bytes of the incomplete trailing line.
func (b *LineBuffer) Pending() []byte {
	return b.pending
}

// Reset discards any buffered bytes.
func (b *LineBuffer) Reset() {
	b.pending = nil
}
