package linesort

import (
	"fmt"

	lserrors "github.com/tamirms/linesort/errors"
	"github.com/tamirms/linesort/internal/record"
	"go.uber.org/zap"
)

const (
	// defaultBufferSize is the chunk buffer capacity (100 MiB).
	defaultBufferSize = 100 << 20

	// defaultOutputBufferSize stages merge output before each write syscall.
	defaultOutputBufferSize = 4 << 20

	// defaultWorkers is the number of chunk sorting goroutines.
	defaultWorkers = 2

	// spillWriteBufferSize and spillReadBufferSize size the bufio layers
	// around each spill file.
	spillWriteBufferSize = 1 << 20
	spillReadBufferSize  = 256 << 10
)

// Option is a functional option for configuring a sort.
type Option func(*config)

type config struct {
	bufferSize       int
	outputBufferSize int
	workers          int
	codec            record.Codec
	tempDir          string // parent of the per-run spill directory; "" = output's directory
	mappedInput      bool
	verify           bool
	logger           *zap.Logger
}

func defaultConfig() *config {
	return &config{
		bufferSize:       defaultBufferSize,
		outputBufferSize: defaultOutputBufferSize,
		workers:          defaultWorkers,
		codec:            record.Default,
		logger:           zap.NewNop(),
	}
}

func (c *config) validate() error {
	if c.bufferSize <= 0 {
		return fmt.Errorf("%w: chunk buffer %d", lserrors.ErrInvalidBufferSize, c.bufferSize)
	}
	if c.outputBufferSize <= 0 {
		return fmt.Errorf("%w: output buffer %d", lserrors.ErrInvalidBufferSize, c.outputBufferSize)
	}
	return c.codec.Validate()
}

// WithBufferSize sets the chunk buffer capacity in bytes.
// No single record may be longer than this.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

// WithOutputBufferSize sets the size of the buffer that stages merged output.
func WithOutputBufferSize(n int) Option {
	return func(c *config) {
		c.outputBufferSize = n
	}
}

// WithWorkers sets the number of goroutines sorting chunks.
// n <= 1 runs producing, sorting and spilling on a single goroutine.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithDelimiter sets the separator between the sequence number and the text,
// and how many bytes from the separator the text starts (default '.' and 2).
func WithDelimiter(delim byte, width int) Option {
	return func(c *config) {
		c.codec = record.Codec{Delim: delim, Width: width}
	}
}

// WithTempDir sets the directory under which spill files are created.
// Defaults to the directory of the output file.
func WithTempDir(dir string) Option {
	return func(c *config) {
		c.tempDir = dir
	}
}

// WithMappedInput reads the input through a read-only memory mapping
// instead of copying it through the chunk buffer. Chunks are still at most
// the buffer size.
func WithMappedInput() Option {
	return func(c *config) {
		c.mappedInput = true
	}
}

// WithVerify checks during the merge that output is in order and that the
// output records are exactly the input records.
func WithVerify() Option {
	return func(c *config) {
		c.verify = true
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
