package linesort

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	lserrors "github.com/tamirms/linesort/errors"
)

// chunk is a run of whole records from the input.
// data never starts or ends inside a record.
type chunk struct {
	data   []byte
	offset int64   // Input offset of data[0]
	buf    *[]byte // Pool handle when data is owned by the chunk, nil when borrowed
}

// chunkPool recycles chunk buffers handed from the producer to workers.
// At most workers+2 buffers are live: one per worker, one in the handoff
// slot, one being filled.
type chunkPool struct {
	pool sync.Pool
}

func newChunkPool(capacity int) *chunkPool {
	p := &chunkPool{}
	p.pool.New = func() any {
		b := make([]byte, 0, capacity)
		return &b
	}
	return p
}

// own copies a borrowed chunk into a pooled buffer. Owned chunks are
// returned unchanged.
func (p *chunkPool) own(c chunk) chunk {
	if c.buf != nil {
		return c
	}
	bp := p.pool.Get().(*[]byte)
	*bp = append((*bp)[:0], c.data...)
	return chunk{data: *bp, offset: c.offset, buf: bp}
}

// put returns an owned chunk's buffer to the pool.
func (p *chunkPool) put(c chunk) {
	if c.buf != nil {
		p.pool.Put(c.buf)
	}
}

// emitFunc consumes one chunk. A borrowed chunk's data is only valid until
// emitFunc returns.
type emitFunc func(chunk) error

// readChunks streams r through buf and emits chunks that end on record
// boundaries. Each chunk excludes its final '\n'; the bytes after it carry
// over to the front of buf for the next read.
//
// A full buffer without any '\n' holds either exactly one record (the next
// input bytes are "\n", "\r\n" or EOF) or the head of a record longer than
// the buffer, which fails with ErrRecordTooLarge.
//
// Returns the number of input bytes consumed.
func readChunks(ctx context.Context, r io.Reader, buf []byte, emit emitFunc) (int64, error) {
	capacity := len(buf)
	cursor := 0
	var offset int64 // Input offset of buf[0]

	for {
		if err := ctx.Err(); err != nil {
			return offset, err
		}

		n, err := io.ReadFull(r, buf[cursor:])
		filled := cursor + n
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if filled > 0 {
				if err := emit(chunk{data: buf[:filled], offset: offset}); err != nil {
					return offset, err
				}
			}
			return offset + int64(filled), nil
		}
		if err != nil {
			return offset, err
		}

		idx := bytes.LastIndexByte(buf, '\n')
		if idx < 0 {
			complete, consumed, err := recordEndsHere(r)
			if err != nil {
				return offset, err
			}
			if !complete {
				return offset, fmt.Errorf("%w: record at offset %d is longer than %d bytes",
					lserrors.ErrRecordTooLarge, offset, capacity)
			}
			if err := emit(chunk{data: buf, offset: offset}); err != nil {
				return offset, err
			}
			offset += int64(capacity + consumed)
			cursor = 0
			continue
		}

		if idx > 0 {
			if err := emit(chunk{data: buf[:idx], offset: offset}); err != nil {
				return offset, err
			}
		}
		cursor = copy(buf, buf[idx+1:])
		offset += int64(idx) + 1
	}
}

// recordEndsHere reads the bytes after a full buffer and reports whether
// they terminate the record ("\n", "\r\n", "\r" at EOF, or EOF), and how many
// bytes it consumed.
func recordEndsHere(r io.Reader) (bool, int, error) {
	var one [1]byte
	consumed := 0
	for {
		_, err := io.ReadFull(r, one[:])
		if errors.Is(err, io.EOF) {
			return true, consumed, nil
		}
		if err != nil {
			return false, consumed, err
		}
		consumed++
		switch {
		case one[0] == '\n':
			return true, consumed, nil
		case one[0] == '\r' && consumed == 1:
			continue
		default:
			return false, consumed, nil
		}
	}
}

// terminatorLen returns the length of the record terminator at the start of
// rest, or -1 if rest does not start with one. An empty rest is EOF.
func terminatorLen(rest []byte) int {
	switch {
	case len(rest) == 0:
		return 0
	case rest[0] == '\n':
		return 1
	case rest[0] == '\r' && (len(rest) == 1 || rest[1] == '\n'):
		return min(len(rest), 2)
	default:
		return -1
	}
}

// mappedChunks walks an in-memory input in windows of capacity bytes, with
// the same boundary rules as readChunks. Emitted chunks are subslices of data
// and stay valid as long as data does.
func mappedChunks(ctx context.Context, data []byte, capacity int, emit emitFunc) (int64, error) {
	start := 0
	for len(data)-start > capacity {
		if err := ctx.Err(); err != nil {
			return int64(start), err
		}

		window := data[start : start+capacity]
		idx := bytes.LastIndexByte(window, '\n')
		if idx < 0 {
			n := terminatorLen(data[start+capacity:])
			if n < 0 {
				return int64(start), fmt.Errorf("%w: record at offset %d is longer than %d bytes",
					lserrors.ErrRecordTooLarge, start, capacity)
			}
			if err := emit(chunk{data: window, offset: int64(start)}); err != nil {
				return int64(start), err
			}
			start += capacity + n
			continue
		}
		if idx > 0 {
			if err := emit(chunk{data: window[:idx], offset: int64(start)}); err != nil {
				return int64(start), err
			}
		}
		start += idx + 1
	}

	if start < len(data) {
		if err := emit(chunk{data: data[start:], offset: int64(start)}); err != nil {
			return int64(start), err
		}
	}
	return int64(len(data)), nil
}
