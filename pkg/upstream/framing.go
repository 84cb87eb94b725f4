package upstream

import (
	"bytes"
	"strings"
)

// recordSeparator delimits logical frames in the upstream byte stream.
// The backend pads records with a blank line, SSE style.
var recordSeparator = []byte("\n\n")

// Reassembler turns a raw, arbitrarily-chunked byte stream into a
// sequence of complete logical frames. It owns a growable buffer with a
// cursor for the unconsumed tail; a frame is never emitted before its
// closing separator has been observed.
//
// The Reassembler performs no JSON or protocol decoding. It is framing
// only, which keeps it independent of the payload format.
type Reassembler struct {
	buf []byte
	off int
}

// Feed appends chunk to the internal buffer and returns all frames
// completed by it, in order. Whitespace-only segments (blank-line
// padding between records) are discarded. The trailing unterminated
// segment stays buffered until more input arrives or Flush is called.
func (r *Reassembler) Feed(chunk []byte) []string {
	r.buf = append(r.buf, chunk...)

	var frames []string
	for {
		i := bytes.Index(r.buf[r.off:], recordSeparator)
		if i < 0 {
			break
		}
		seg := r.buf[r.off : r.off+i]
		r.off += i + len(recordSeparator)

		if len(bytes.TrimSpace(seg)) == 0 {
			continue
		}
		frames = append(frames, string(seg))
	}

	// Compact once the consumed prefix dominates the buffer, so a
	// long-running stream does not grow the arena without bound.
	if r.off > 0 && r.off >= len(r.buf)/2 {
		r.buf = append(r.buf[:0], r.buf[r.off:]...)
		r.off = 0
	}

	return frames
}

// Flush returns any remaining buffered content as a final frame. It is
// called at stream end; an upstream that closes the connection without
// a trailing separator still gets its last record delivered. The second
// return value is false when the buffer held nothing but whitespace.
func (r *Reassembler) Flush() (string, bool) {
	tail := strings.TrimSpace(string(r.buf[r.off:]))
	r.buf = r.buf[:0]
	r.off = 0
	if tail == "" {
		return "", false
	}
	return tail, true
}
