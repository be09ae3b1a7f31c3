// Package record parses delimited lines into sortable records and defines
// the total order shared by chunk sorting and the merge.
//
// A record line has the form <integer><delimiter><padding><text>. The
// integer prefix is the sequence number; the text starting Width bytes after
// the delimiter is the key.
package record

import (
	"bytes"
	"cmp"
	"fmt"
	"iter"
	"math"

	lserrors "github.com/tamirms/linesort/errors"
)

// maxQuoted bounds how much of a bad line is echoed in error messages.
const maxQuoted = 64

// Codec describes where the key starts relative to the delimiter.
type Codec struct {
	Delim byte // Separator between the sequence number and the text
	Width int  // Bytes skipped from the delimiter to the first key byte
}

// Default matches lines like "10. apple": a '.' delimiter plus one padding byte.
var Default = Codec{Delim: '.', Width: 2}

// Validate reports whether the codec can parse newline-delimited input.
func (c Codec) Validate() error {
	if c.Width < 1 {
		return fmt.Errorf("%w: width %d", lserrors.ErrInvalidDelimiter, c.Width)
	}
	if c.Delim == '\n' || c.Delim == '\r' {
		return fmt.Errorf("%w: %q is a line terminator", lserrors.ErrInvalidDelimiter, c.Delim)
	}
	return nil
}

// Record is one parsed line. It borrows the line bytes; the caller must keep
// them unchanged while the record is in use.
type Record struct {
	line []byte
	key  int // Offset of the first key byte in line
	seq  int64
}

// Parse splits line into sequence number and key. The line terminator must
// already be stripped.
func (c Codec) Parse(line []byte) (Record, error) {
	idx := bytes.IndexByte(line, c.Delim)
	if idx < 0 {
		return Record{}, fmt.Errorf("%w: no %q delimiter in %q", lserrors.ErrMalformedRecord, c.Delim, quote(line))
	}
	seq, ok := parseInt(line[:idx])
	if !ok {
		return Record{}, fmt.Errorf("%w: prefix %q is not an integer", lserrors.ErrMalformedRecord, quote(line[:idx]))
	}
	if idx+c.Width > len(line) {
		return Record{}, fmt.Errorf("%w: line %q ends inside the delimiter", lserrors.ErrMalformedRecord, quote(line))
	}
	return Record{line: line, key: idx + c.Width, seq: seq}, nil
}

// Seq returns the integer prefix.
func (r Record) Seq() int64 { return r.seq }

// Key returns the text suffix.
func (r Record) Key() []byte { return r.line[r.key:] }

// Line returns the original line bytes, without terminator.
func (r Record) Line() []byte { return r.line }

// Compare orders records by key bytes, then by sequence number.
func Compare(a, b Record) int {
	if c := bytes.Compare(a.line[a.key:], b.line[b.key:]); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// Lines yields every non-empty line of chunk together with its byte offset.
// Lines are split on '\n'; a '\r' directly before the split point is dropped.
func Lines(chunk []byte) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		off := 0
		for off < len(chunk) {
			end := len(chunk)
			next := end
			if i := bytes.IndexByte(chunk[off:], '\n'); i >= 0 {
				end = off + i
				next = end + 1
			}
			line := chunk[off:end]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			if len(line) > 0 && !yield(off, line) {
				return
			}
			off = next
		}
	}
}

// parseInt parses an optionally signed base-10 int64 without allocating.
func parseInt(b []byte) (int64, bool) {
	neg := false
	if len(b) > 0 && (b[0] == '-' || b[0] == '+') {
		neg = b[0] == '-'
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, false
	}
	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}
	var n uint64
	for _, c := range b {
		d := uint64(c - '0')
		if d > 9 {
			return 0, false
		}
		if n > (limit-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	if neg {
		// -(1<<63) wraps to MinInt64, which is the intended value.
		return -int64(n), true
	}
	return int64(n), true
}

func quote(b []byte) []byte {
	if len(b) > maxQuoted {
		return b[:maxQuoted]
	}
	return b
}
