package linesort

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"
	lserrors "github.com/tamirms/linesort/errors"
	"github.com/tamirms/linesort/internal/record"
	"go.uber.org/zap"
)

// chunkSorter turns one chunk into one sorted spill file.
// Each worker goroutine owns one chunkSorter; its buffers are reused
// across chunks and never shared.
type chunkSorter struct {
	input   string
	codec   record.Codec
	spills  *spillSet
	fp      *fingerprint // nil unless verifying
	logger  *zap.Logger
	records []record.Record
	w       *bufio.Writer
	digest  *xxhash.Digest
}

func newChunkSorter(s *sorter) *chunkSorter {
	cs := &chunkSorter{
		input:  s.input,
		codec:  s.cfg.codec,
		spills: s.spills,
		logger: s.cfg.logger,
		w:      bufio.NewWriterSize(nil, spillWriteBufferSize),
		digest: xxhash.New(),
	}
	if s.cfg.verify {
		cs.fp = &s.fp
	}
	return cs
}

// sortChunk parses every line of c, sorts the records and writes them to a
// newly allocated spill file. Chunks without records produce no spill file.
func (cs *chunkSorter) sortChunk(c chunk) error {
	records := cs.records[:0]
	defer func() {
		// Drop references into c.data before it goes back to the pool.
		clear(records)
		cs.records = records[:0]
	}()

	for off, line := range record.Lines(c.data) {
		rec, err := cs.codec.Parse(line)
		if err != nil {
			return lserrors.At(lserrors.StageParse, cs.input,
				fmt.Errorf("offset %d: %w", c.offset+int64(off), err))
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}

	slices.SortFunc(records, record.Compare)

	if cs.fp != nil {
		var sum uint64
		for _, r := range records {
			sum += lineHash(r.Line())
		}
		cs.fp.add(sum, int64(len(records)))
	}

	id := cs.spills.allocate()
	path := cs.spills.path(id)
	info, err := cs.writeSpill(path, records)
	if err != nil {
		return lserrors.At(lserrors.StageSort, path, err)
	}
	cs.spills.commit(id, info)

	cs.logger.Debug("spill written",
		zap.Int64("id", id),
		zap.Int64("records", info.records),
		zap.Int64("bytes", info.bytes),
		zap.Int64("inputOffset", c.offset))
	return nil
}

// writeSpill writes records one per line to a new file at path, hashing the
// bytes as they are written.
func (cs *chunkSorter) writeSpill(path string, records []record.Record) (spillInfo, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return spillInfo{}, err
	}

	cs.digest.Reset()
	cs.w.Reset(io.MultiWriter(f, cs.digest))

	var n int64
	for _, r := range records {
		line := r.Line()
		if _, err := cs.w.Write(line); err != nil {
			return spillInfo{}, errors.Join(err, f.Close())
		}
		if err := cs.w.WriteByte('\n'); err != nil {
			return spillInfo{}, errors.Join(err, f.Close())
		}
		n += int64(len(line)) + 1
	}
	if err := cs.w.Flush(); err != nil {
		return spillInfo{}, errors.Join(err, f.Close())
	}
	cs.w.Reset(nil)
	if err := f.Close(); err != nil {
		return spillInfo{}, fmt.Errorf("close spill: %w", err)
	}

	return spillInfo{
		records: int64(len(records)),
		bytes:   n,
		digest:  cs.digest.Sum64(),
	}, nil
}
