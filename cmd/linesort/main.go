// Linesort sorts a file of "<int><delim><pad><text>" records by text, then by
// the integer prefix, using bounded memory.
//
// Usage:
//
//	go run ./cmd/linesort -in source.txt -out sorted.txt -buffer 64MiB -workers 4
//
// Flags:
//
//	-in       Input file (required)
//	-out      Output file (required)
//	-buffer   Chunk buffer size; plain bytes or KiB/MiB/GiB suffix (default: 100MiB)
//	-workers  Chunk sorting goroutines (default: 2)
//	-delim    Delimiter between number and text (default: ".")
//	-width    Bytes from the delimiter to the text (default: 2)
//	-tmp      Directory for spill files (default: output's directory)
//	-mmap     Read the input through a memory mapping
//	-verify   Check output order and record digests during the merge
//	-v        Debug logging
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tamirms/linesort"
)

func main() {
	os.Exit(run())
}

func run() int {
	inFlag := flag.String("in", "", "input file")
	outFlag := flag.String("out", "", "output file")
	bufferFlag := flag.String("buffer", "100MiB", "chunk buffer size (bytes, or KiB/MiB/GiB suffix)")
	workersFlag := flag.Int("workers", 2, "number of chunk sorting goroutines")
	delimFlag := flag.String("delim", ".", "single-byte delimiter between number and text")
	widthFlag := flag.Int("width", 2, "bytes from the delimiter to the start of the text")
	tmpFlag := flag.String("tmp", "", "directory for spill files (default: output's directory)")
	mmapFlag := flag.Bool("mmap", false, "read the input through a memory mapping")
	verifyFlag := flag.Bool("verify", false, "verify output order and record digests")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *inFlag == "" || *outFlag == "" {
		fmt.Fprintln(os.Stderr, "linesort: -in and -out are required")
		flag.Usage()
		return 2
	}
	bufferSize, err := parseSize(*bufferFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linesort: -buffer: %v\n", err)
		return 2
	}
	if len(*delimFlag) != 1 {
		fmt.Fprintf(os.Stderr, "linesort: -delim must be a single byte, got %q\n", *delimFlag)
		return 2
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linesort: logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	opts := []linesort.Option{
		linesort.WithBufferSize(bufferSize),
		linesort.WithWorkers(*workersFlag),
		linesort.WithDelimiter((*delimFlag)[0], *widthFlag),
		linesort.WithTempDir(*tmpFlag),
		linesort.WithLogger(logger),
	}
	if *mmapFlag {
		opts = append(opts, linesort.WithMappedInput())
	}
	if *verifyFlag {
		opts = append(opts, linesort.WithVerify())
	}

	// Interrupts cancel the sort, which removes spill files and partial output.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := linesort.Sort(ctx, *inFlag, *outFlag, opts...)
	if err != nil {
		logger.Error("sort failed", zap.Error(err))
		if stats == nil {
			return 1
		}
		// Output is complete; only spill removal failed.
	}

	fmt.Printf("Sorted %d records (%d spills) in %.2fs\n",
		stats.Records, stats.Spills, stats.Elapsed.Seconds())
	fmt.Printf("  sort phase:  %.2fs\n", stats.SortPhase.Seconds())
	fmt.Printf("  merge phase: %.2fs\n", stats.MergePhase.Seconds())
	fmt.Printf("  read %s, wrote %s\n", formatSize(stats.BytesRead), formatSize(stats.BytesWritten))
	if *verifyFlag {
		fmt.Printf("  fingerprint: %016x\n", stats.Fingerprint)
	}
	if err != nil {
		return 1
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "time"
	return cfg.Build()
}
