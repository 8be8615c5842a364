// Package frame decodes the RecordIO-style length-prefixed stream the Mesos
// Operator API sends in response to a SUBSCRIBE call: each record is an ASCII
// decimal byte count, a newline, then exactly that many bytes of JSON.
//
// Decoder is a pure value type over its own buffer — Feed never blocks and
// never reads past what the caller hands it, so it composes with any chunked
// transport (an HTTP response body, a test byte-slice, a TCP conn).
package frame

import (
	"bytes"
	"errors"
	"strconv"
)

// maxLengthPrefixDigits bounds how many ASCII digits a length prefix may
// contain before the stream is considered malformed. No length that fits in
// a 64-bit counter needs more than 20 decimal digits; 12 is a deliberately
// tighter bound to detect a desynced stream early rather than buffering
// gigabytes waiting for a newline that will never come.
const maxLengthPrefixDigits = 12

// ErrBadFormat is returned when the stream does not look like RecordIO: more
// than maxLengthPrefixDigits bytes buffered with no newline, or a length
// prefix that is not a decimal integer.
var ErrBadFormat = errors.New("frame: malformed record length prefix")

// Decoder accumulates bytes across chunks and yields complete frames.
// The zero value is ready to use.
type Decoder struct {
	size    int64 // meaningful only while haveLen is true
	haveLen bool
	buf     bytes.Buffer
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer and extracts as many complete
// frames as are now available. It may return zero, one, or several frames
// from a single chunk, and a chunk may complete a frame started by several
// previous calls.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf.Write(chunk)

	var frames [][]byte
	for {
		if !d.haveLen {
			raw := d.buf.Bytes()
			idx := bytes.IndexByte(raw, '\n')
			if idx == -1 {
				if d.buf.Len() > maxLengthPrefixDigits {
					return frames, ErrBadFormat
				}
				return frames, nil
			}

			prefix := raw[:idx]
			n, err := strconv.ParseUint(string(prefix), 10, 64)
			if err != nil {
				return frames, ErrBadFormat
			}

			// Drop the prefix and the newline, keep the remainder.
			remainder := make([]byte, d.buf.Len()-idx-1)
			copy(remainder, raw[idx+1:])
			d.buf.Reset()
			d.buf.Write(remainder)

			d.size = int64(n)
			d.haveLen = true
			continue
		}

		if int64(d.buf.Len()) < d.size {
			return frames, nil
		}

		raw := d.buf.Bytes()
		frame := make([]byte, d.size)
		copy(frame, raw[:d.size])

		remainder := make([]byte, int64(d.buf.Len())-d.size)
		copy(remainder, raw[d.size:])
		d.buf.Reset()
		d.buf.Write(remainder)

		d.haveLen = false
		d.size = 0
		frames = append(frames, frame)
	}
}

// Encode frames a single JSON payload in RecordIO form. It exists mainly for
// tests that need to round-trip Decoder against arbitrary chunk boundaries.
func Encode(payload []byte) []byte {
	var out bytes.Buffer
	out.WriteString(strconv.Itoa(len(payload)))
	out.WriteByte('\n')
	out.Write(payload)
	return out.Bytes()
}
