package stream

import "bytes"

// MaxLineBytes bounds a single buffered record. A line that grows past it
// without a newline is discarded.
const MaxLineBytes = 16 << 20

// LineSplitter reconstructs newline-terminated lines from arbitrarily
// chunked input. A trailing partial line is kept until the chunk that
// completes it arrives.
type LineSplitter struct {
	pending    []byte
	overflowed bool
	dropped    int
}

// Split appends chunk to the carried-over fragment and returns every
// complete line, without the terminator and with a trailing '\r' removed.
// The returned slices are owned by the caller.
func (s *LineSplitter) Split(chunk []byte) [][]byte {
	var lines [][]byte

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			s.buffer(chunk)
			break
		}

		s.buffer(chunk[:i])
		chunk = chunk[i+1:]

		if s.overflowed {
			s.dropped++
			s.reset()
			continue
		}
		lines = append(lines, trimCR(s.pending))
		s.reset()
	}

	return lines
}

// Flush returns the buffered fragment, if any, and clears it. It is used at
// end of stream, where a final record may lack its newline.
func (s *LineSplitter) Flush() []byte {
	if s.overflowed {
		s.dropped++
		s.reset()
		return nil
	}
	if len(s.pending) == 0 {
		return nil
	}
	line := trimCR(s.pending)
	s.reset()
	return line
}

// Pending returns the number of buffered bytes awaiting a newline.
func (s *LineSplitter) Pending() int {
	return len(s.pending)
}

// Dropped returns how many oversized lines were discarded.
func (s *LineSplitter) Dropped() int {
	return s.dropped
}

func (s *LineSplitter) buffer(b []byte) {
	if s.overflowed {
		return
	}
	if len(s.pending)+len(b) > MaxLineBytes {
		s.overflowed = true
		s.pending = nil
		return
	}
	s.pending = append(s.pending, b...)
}

func (s *LineSplitter) reset() {
	s.pending = nil
	s.overflowed = false
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}
