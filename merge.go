package linesort

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	lserrors "github.com/tamirms/linesort/errors"
	"github.com/tamirms/linesort/internal/frontier"
	"github.com/tamirms/linesort/internal/record"
	"go.uber.org/zap"
)

// contextCheckInterval is how often the merge checks for cancellation.
const contextCheckInterval = 10000

// spillReader streams one spill file line by line and re-checks what the
// chunk sorter recorded about it once the file is drained.
type spillReader struct {
	id      int64
	path    string
	file    *os.File
	r       *bufio.Reader
	digest  *xxhash.Digest
	scratch []byte // Holds lines longer than the bufio buffer
	want    spillInfo
	records int64
	bytes   int64
}

func openSpill(s *spillSet, id int64) (*spillReader, error) {
	path := s.path(id)
	want, ok := s.lookup(id)
	if !ok {
		return nil, lserrors.At(lserrors.StageMerge, path,
			fmt.Errorf("%w: spill %d was never committed", lserrors.ErrSpillCorrupted, id))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, lserrors.At(lserrors.StageMerge, path, err)
	}
	fadviseSequential(f)
	return &spillReader{
		id:     id,
		path:   path,
		file:   f,
		r:      bufio.NewReaderSize(f, spillReadBufferSize),
		digest: xxhash.New(),
		want:   want,
	}, nil
}

// next returns the next line without its terminator, or ok=false once the
// file is drained and verified. The line is valid until the following call.
func (sr *spillReader) next() (line []byte, ok bool, err error) {
	line, err = sr.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		sr.scratch = append(sr.scratch[:0], line...)
		for errors.Is(err, bufio.ErrBufferFull) {
			line, err = sr.r.ReadSlice('\n')
			sr.scratch = append(sr.scratch, line...)
		}
		line = sr.scratch
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, lserrors.At(lserrors.StageMerge, sr.path, err)
	}
	if len(line) == 0 {
		return nil, false, sr.verify()
	}

	_, _ = sr.digest.Write(line)
	sr.bytes += int64(len(line))
	sr.records++
	return bytes.TrimSuffix(line, []byte{'\n'}), true, nil
}

// verify compares what was read against what was written.
func (sr *spillReader) verify() error {
	if sr.records != sr.want.records || sr.bytes != sr.want.bytes || sr.digest.Sum64() != sr.want.digest {
		return lserrors.At(lserrors.StageMerge, sr.path,
			fmt.Errorf("%w: read %d records (%d bytes, hash %016x), wrote %d records (%d bytes, hash %016x)",
				lserrors.ErrSpillCorrupted, sr.records, sr.bytes, sr.digest.Sum64(),
				sr.want.records, sr.want.bytes, sr.want.digest))
	}
	return nil
}

func (sr *spillReader) close() error {
	if sr.file == nil {
		return nil
	}
	err := sr.file.Close()
	sr.file = nil
	return err
}

// mergeStats is what the merge reports back to Sort.
type mergeStats struct {
	records int64
	bytes   int64
	sum     uint64 // Output fingerprint sum, when verifying
}

// merger drains every spill file through the frontier heap into the output.
type merger struct {
	cfg     *config
	spills  *spillSet
	output  string
	readers []*spillReader // Arena indexed by heap source
	heap    *frontier.Heap
	prev    []byte // Copy of the last emitted line, when verifying
	created bool   // Output file was opened (and truncated) by this merge
}

func newMerger(cfg *config, spills *spillSet, output string) *merger {
	return &merger{cfg: cfg, spills: spills, output: output}
}

// run merges spill files 1..N into the output file.
func (m *merger) run(ctx context.Context) (mergeStats, error) {
	defer m.closeReaders()

	n := m.spills.count()
	m.readers = make([]*spillReader, 0, n)
	m.heap = frontier.New(int(n))

	for id := int64(1); id <= n; id++ {
		sr, err := openSpill(m.spills, id)
		if err != nil {
			return mergeStats{}, err
		}
		src := len(m.readers)
		m.readers = append(m.readers, sr)

		line, ok, err := sr.next()
		if err != nil {
			return mergeStats{}, err
		}
		if !ok {
			// Empty spill: drop the reader now.
			if err := sr.close(); err != nil {
				return mergeStats{}, lserrors.At(lserrors.StageMerge, sr.path, err)
			}
			continue
		}
		rec, err := m.parse(sr, line)
		if err != nil {
			return mergeStats{}, err
		}
		m.heap.Push(rec, src)
	}

	out, err := os.OpenFile(m.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return mergeStats{}, lserrors.At(lserrors.StageWrite, m.output, err)
	}
	m.created = true
	if err := preallocate(out, m.spills.totalBytes()); err != nil {
		primaryErr := lserrors.At(lserrors.StageWrite, m.output, fmt.Errorf("pre-allocate: %w", err))
		return mergeStats{}, errors.Join(primaryErr, out.Close())
	}

	st, err := m.drain(ctx, out)
	if err != nil {
		return mergeStats{}, errors.Join(err, out.Close())
	}

	// Drop any reservation past the written size.
	if err := out.Truncate(st.bytes); err != nil {
		primaryErr := lserrors.At(lserrors.StageWrite, m.output, fmt.Errorf("truncate: %w", err))
		return mergeStats{}, errors.Join(primaryErr, out.Close())
	}
	if err := out.Close(); err != nil {
		return mergeStats{}, lserrors.At(lserrors.StageWrite, m.output, err)
	}
	return st, nil
}

// drain runs the k-way merge loop.
//
// INVARIANT: the heap holds the smallest unread record of every live spill
// file, so its top is the smallest unread record overall.
func (m *merger) drain(ctx context.Context, out io.Writer) (mergeStats, error) {
	w := bufio.NewWriterSize(out, m.cfg.outputBufferSize)
	var st mergeStats
	counter := 0

	for m.heap.Len() > 0 {
		counter++
		if counter >= contextCheckInterval {
			counter = 0
			if err := ctx.Err(); err != nil {
				return st, lserrors.At(lserrors.StageMerge, "", err)
			}
		}

		rec, src := m.heap.Top()
		line := rec.Line()
		if m.cfg.verify {
			if err := m.checkOrder(rec); err != nil {
				return st, err
			}
			st.sum += lineHash(line)
		}
		if _, err := w.Write(line); err != nil {
			return st, lserrors.At(lserrors.StageWrite, m.output, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return st, lserrors.At(lserrors.StageWrite, m.output, err)
		}
		st.records++
		st.bytes += int64(len(line)) + 1

		sr := m.readers[src]
		next, ok, err := sr.next()
		if err != nil {
			return st, err
		}
		if !ok {
			m.heap.Pop()
			if err := sr.close(); err != nil {
				return st, lserrors.At(lserrors.StageMerge, sr.path, err)
			}
			continue
		}
		nextRec, err := m.parse(sr, next)
		if err != nil {
			return st, err
		}
		m.heap.ReplaceTop(nextRec)
	}

	if err := w.Flush(); err != nil {
		return st, lserrors.At(lserrors.StageWrite, m.output, err)
	}
	return st, nil
}

// parse decodes a spill line. Spill files only ever hold lines that parsed
// once already, so a failure here means the file changed under us.
func (m *merger) parse(sr *spillReader, line []byte) (record.Record, error) {
	rec, err := m.cfg.codec.Parse(line)
	if err != nil {
		return record.Record{}, lserrors.At(lserrors.StageMerge, sr.path,
			fmt.Errorf("%w: line %d: %w", lserrors.ErrSpillCorrupted, sr.records, err))
	}
	return rec, nil
}

// checkOrder fails if rec sorts before the previously emitted record.
func (m *merger) checkOrder(rec record.Record) error {
	if m.prev != nil {
		prev, err := m.cfg.codec.Parse(m.prev)
		if err != nil {
			return lserrors.At(lserrors.StageMerge, m.output, err)
		}
		if record.Compare(prev, rec) > 0 {
			return lserrors.At(lserrors.StageMerge, m.output,
				fmt.Errorf("%w: %q after %q", lserrors.ErrOutputUnsorted, rec.Line(), m.prev))
		}
	}
	m.prev = append(m.prev[:0], rec.Line()...)
	return nil
}

func (m *merger) closeReaders() {
	for _, sr := range m.readers {
		if err := sr.close(); err != nil {
			m.cfg.logger.Warn("close spill", zap.String("path", sr.path), zap.Error(err))
		}
	}
}
