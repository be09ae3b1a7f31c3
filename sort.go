package linesort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/edsrzf/mmap-go"
	lserrors "github.com/tamirms/linesort/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stats describes a completed sort.
type Stats struct {
	Records      int64         // Records written to the output
	Spills       int           // Spill files produced (one per non-empty chunk)
	BytesRead    int64         // Input bytes consumed
	BytesWritten int64         // Output bytes written
	SortPhase    time.Duration // Chunking, sorting and spilling
	MergePhase   time.Duration // k-way merge
	Elapsed      time.Duration // Whole run, including cleanup
	Fingerprint  uint64        // Order-independent record digest; zero unless WithVerify
}

// sorter holds the state of one Sort call.
type sorter struct {
	cfg    *config
	input  string
	output string
	spills *spillSet
	fp     fingerprint
	pool   *chunkPool
}

// Sort reads the records in input, sorts them by text and then by sequence
// number, and writes them to output, one per line.
//
// The input is processed in chunks of at most the buffer size (WithBufferSize).
// Each chunk is sorted in memory and spilled to a temporary file; the spill
// files are then merged into output and deleted.
//
// Any failure aborts the run: spill files are removed, a partially written
// output is removed, and the returned error is a *errors.StageError naming the
// stage and file. If only the final spill removal fails, output is complete
// and Sort returns both the Stats and the cleanup error.
func Sort(ctx context.Context, input, output string, opts ...Option) (*Stats, error) {
	start := time.Now()

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := checkDistinct(input, output); err != nil {
		return nil, err
	}

	tempParent := cfg.tempDir
	if tempParent == "" {
		tempParent = filepath.Dir(output)
	}
	spills, err := newSpillSet(tempParent)
	if err != nil {
		return nil, lserrors.At(lserrors.StageWrite, tempParent, fmt.Errorf("create spill directory: %w", err))
	}

	s := &sorter{
		cfg:    cfg,
		input:  input,
		output: output,
		spills: spills,
		pool:   newChunkPool(cfg.bufferSize),
	}
	log := cfg.logger.With(zap.String("input", input), zap.String("output", output))
	log.Info("sort started",
		zap.Int("bufferSize", cfg.bufferSize),
		zap.Int("workers", cfg.workers),
		zap.Bool("mappedInput", cfg.mappedInput))

	bytesRead, err := s.produceAndSort(ctx)
	if err != nil {
		return nil, errors.Join(err, spills.cleanup())
	}
	sortDone := time.Now()
	log.Info("sort phase complete",
		zap.Int64("spills", spills.count()),
		zap.Int64("bytesRead", bytesRead),
		zap.Duration("elapsed", sortDone.Sub(start)))

	m := newMerger(cfg, spills, output)
	st, err := m.run(ctx)
	if err == nil && cfg.verify {
		err = s.checkFingerprint(st)
	}
	if err != nil {
		errs := []error{err, spills.cleanup()}
		if m.created {
			errs = append(errs, os.Remove(output))
		}
		return nil, errors.Join(errs...)
	}
	mergeDone := time.Now()

	stats := &Stats{
		Records:      st.records,
		Spills:       int(spills.count()),
		BytesRead:    bytesRead,
		BytesWritten: st.bytes,
		SortPhase:    sortDone.Sub(start),
		MergePhase:   mergeDone.Sub(sortDone),
	}
	if cfg.verify {
		stats.Fingerprint = st.sum
	}

	cleanupErr := spills.cleanup()
	stats.Elapsed = time.Since(start)
	log.Info("sort complete",
		zap.Int64("records", stats.Records),
		zap.Int("spills", stats.Spills),
		zap.Int64("bytesWritten", stats.BytesWritten),
		zap.Duration("mergePhase", stats.MergePhase),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, cleanupErr
}

// checkDistinct rejects sorting a file onto itself, which would truncate
// the input before it is read.
func checkDistinct(input, output string) error {
	in, err := os.Stat(input)
	if err != nil {
		return lserrors.At(lserrors.StageRead, input, err)
	}
	out, err := os.Stat(output)
	if err != nil {
		return nil // Output does not exist yet
	}
	if os.SameFile(in, out) {
		return lserrors.At(lserrors.StageRead, input, lserrors.ErrSameFile)
	}
	return nil
}

// produceAndSort chunks the input and spills every chunk sorted.
// On return every spill file is closed and committed.
func (s *sorter) produceAndSort(ctx context.Context) (int64, error) {
	f, err := os.Open(s.input)
	if err != nil {
		return 0, lserrors.At(lserrors.StageRead, s.input, err)
	}
	defer f.Close()

	if s.cfg.mappedInput {
		return s.produceMapped(ctx, f)
	}
	fadviseSequential(f)

	buf := make([]byte, s.cfg.bufferSize)
	produce := func(ctx context.Context, emit emitFunc) (int64, error) {
		return readChunks(ctx, f, buf, emit)
	}
	return s.run(ctx, produce, true)
}

// produceMapped maps the input read-only and chunks the mapping in place.
func (s *sorter) produceMapped(ctx context.Context, f *os.File) (int64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, lserrors.At(lserrors.StageRead, s.input, err)
	}
	if stat.Size() == 0 {
		return 0, nil
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return 0, lserrors.At(lserrors.StageRead, s.input, fmt.Errorf("mmap input: %w", err))
	}
	data := []byte(mm)
	adviseSequential(data)

	produce := func(ctx context.Context, emit emitFunc) (int64, error) {
		return mappedChunks(ctx, data, s.cfg.bufferSize, emit)
	}
	// Chunks point into the mapping, which outlives every worker.
	n, err := s.run(ctx, produce, false)
	if unmapErr := mm.Unmap(); unmapErr != nil {
		err = errors.Join(err, lserrors.At(lserrors.StageRead, s.input, fmt.Errorf("munmap input: %w", unmapErr)))
	}
	return n, err
}

// run drives produce either inline (sequential) or with a worker pool.
// copyChunks is set when emitted chunks borrow a buffer the producer reuses.
func (s *sorter) run(ctx context.Context, produce func(context.Context, emitFunc) (int64, error), copyChunks bool) (int64, error) {
	if s.cfg.workers <= 1 {
		cs := newChunkSorter(s)
		n, err := produce(ctx, cs.sortChunk)
		return n, s.readErr(err)
	}

	// The handoff holds a single chunk: the producer blocks on the send
	// until a worker has taken the previous one.
	chunks := make(chan chunk, 1)
	g, gctx := errgroup.WithContext(ctx)

	for range s.cfg.workers {
		g.Go(func() error {
			cs := newChunkSorter(s)
			for c := range chunks {
				if err := gctx.Err(); err != nil {
					s.pool.put(c)
					return lserrors.At(lserrors.StageSort, "", err)
				}
				err := cs.sortChunk(c)
				s.pool.put(c)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	var bytesRead int64
	g.Go(func() error {
		defer close(chunks)
		n, err := produce(gctx, func(c chunk) error {
			if copyChunks {
				c = s.pool.own(c)
			}
			select {
			case chunks <- c:
				return nil
			case <-gctx.Done():
				s.pool.put(c)
				return gctx.Err()
			}
		})
		bytesRead = n
		return s.readErr(err)
	})

	// Wait returns only after every worker has closed its last spill file.
	if err := g.Wait(); err != nil {
		return bytesRead, err
	}
	return bytesRead, nil
}

// readErr attributes producer errors without a stage to the read stage.
// Errors raised by chunk sorting already carry their own stage.
func (s *sorter) readErr(err error) error {
	if err == nil {
		return nil
	}
	var se *lserrors.StageError
	if errors.As(err, &se) {
		return err
	}
	return lserrors.At(lserrors.StageRead, s.input, err)
}

// checkFingerprint compares the output record digest with the input's.
func (s *sorter) checkFingerprint(st mergeStats) error {
	sum, count := s.fp.load()
	if sum != st.sum || count != st.records {
		return lserrors.At(lserrors.StageMerge, s.output,
			fmt.Errorf("%w: input %d records (digest %016x), output %d records (digest %016x)",
				lserrors.ErrDigestMismatch, count, sum, st.records, st.sum))
	}
	return nil
}
