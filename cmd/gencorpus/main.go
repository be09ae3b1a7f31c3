// Gencorpus writes a deterministic linesort test corpus.
//
// Each line is "<seq>. <text>", where text is derived from murmur3 of a key
// ordinal drawn from [0, keyspace). A small keyspace produces many duplicate
// texts, which exercises the sequence number tie-break.
//
// Usage:
//
//	go run ./cmd/gencorpus -out source.txt -lines 10000000 -keyspace 100000
//
// Flags:
//
//	-out       Output file (required)
//	-lines     Number of lines (default: 1,000,000)
//	-seed      Generator seed (default: 42)
//	-keyspace  Distinct texts, 0 for every line distinct (default: 0)
//	-crlf      Terminate lines with "\r\n"
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tamirms/linesort/internal/corpus"
)

func main() {
	outFlag := flag.String("out", "", "output file")
	linesFlag := flag.Int64("lines", 1_000_000, "number of lines")
	seedFlag := flag.Uint64("seed", 42, "generator seed")
	keyspaceFlag := flag.Uint64("keyspace", 0, "distinct texts (0 = one per line)")
	crlfFlag := flag.Bool("crlf", false, "terminate lines with \\r\\n")
	flag.Parse()

	if *outFlag == "" {
		fmt.Fprintln(os.Stderr, "gencorpus: -out is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := corpus.Config{
		Lines:    *linesFlag,
		Keyspace: *keyspaceFlag,
		Seed:     *seedFlag,
		CRLF:     *crlfFlag,
	}

	start := time.Now()
	n, err := corpus.WriteFile(*outFlag, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gencorpus: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d lines (%.1f MB) to %s in %.2fs\n",
		cfg.Lines, float64(n)/1_000_000, *outFlag, time.Since(start).Seconds())
}
