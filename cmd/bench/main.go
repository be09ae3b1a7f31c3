// Bench is a benchmarking tool for measuring linesort throughput and memory
// usage against the chunk buffer size.
//
// Usage:
//
//	go run ./cmd/bench -lines 10000000 -buffer 64 -workers 4
//
// Flags:
//
//	-lines     Number of records to generate (default: 10,000,000)
//	-buffer    Chunk buffer size in MiB (default: 100)
//	-workers   Number of chunk sorting goroutines (default: 2)
//	-keyspace  Distinct texts, 0 for every record distinct (default: 0)
//	-mmap      Use mapped input mode (default: false)
//	-verify    Verify order and digests during the merge (default: false)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tamirms/linesort"
	"github.com/tamirms/linesort/internal/corpus"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

func main() {
	linesFlag := flag.Int("lines", 10_000_000, "number of records")
	bufferFlag := flag.Int("buffer", 100, "chunk buffer size in MiB")
	workersFlag := flag.Int("workers", 2, "number of chunk sorting goroutines")
	keyspaceFlag := flag.Uint64("keyspace", 0, "distinct texts (0 = one per record)")
	mmapFlag := flag.Bool("mmap", false, "use mapped input mode")
	verifyFlag := flag.Bool("verify", false, "verify order and digests during the merge")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file (sort only)")
	memprofile := flag.String("memprofile", "", "write memory profile to file (sort only)")
	flag.Parse()

	tmpDir, err := os.MkdirTemp("", "bench-")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	inputPath := filepath.Join(tmpDir, "input.txt")
	outputPath := filepath.Join(tmpDir, "sorted.txt")

	fmt.Println("Generating corpus...")
	genStart := time.Now()
	inputSize, err := corpus.WriteFile(inputPath, corpus.Config{
		Lines:    int64(*linesFlag),
		Keyspace: *keyspaceFlag,
		Seed:     42,
	})
	if err != nil {
		fmt.Printf("Generating corpus failed: %v\n", err)
		return
	}
	genDuration := time.Since(genStart)

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)
	baselineRSS := getMaxRSS()

	// 10ms sampling for peak memory. runtime/metrics avoids the
	// stop-the-world pause of ReadMemStats.
	var peakAlloc atomic.Uint64
	var peakRSS atomic.Uint64
	peakAlloc.Store(baseline.Alloc)
	peakRSS.Store(baselineRSS)
	done := make(chan struct{})
	go func() {
		samples := []metrics.Sample{
			{Name: "/memory/classes/heap/objects:bytes"},
		}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				heapBytes := samples[0].Value.Uint64()
				for {
					old := peakAlloc.Load()
					if heapBytes <= old || peakAlloc.CompareAndSwap(old, heapBytes) {
						break
					}
				}
				rss := getMaxRSS()
				for {
					old := peakRSS.Load()
					if rss <= old || peakRSS.CompareAndSwap(old, rss) {
						break
					}
				}
			}
		}
	}()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Printf("could not create CPU profile: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Printf("could not start CPU profile: %v\n", err)
			return
		}
	}

	opts := []linesort.Option{
		linesort.WithBufferSize(*bufferFlag << 20),
		linesort.WithWorkers(*workersFlag),
		linesort.WithTempDir(tmpDir),
	}
	if *mmapFlag {
		opts = append(opts, linesort.WithMappedInput())
	}
	if *verifyFlag {
		opts = append(opts, linesort.WithVerify())
	}

	fmt.Println("Sorting...")
	stats, err := linesort.Sort(context.Background(), inputPath, outputPath, opts...)

	if *cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Printf("could not create memory profile: %v\n", err)
		} else {
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Printf("could not write memory profile: %v\n", err)
			}
			_ = f.Close()
		}
	}

	close(done)

	var final runtime.MemStats
	runtime.ReadMemStats(&final)
	if final.Alloc > peakAlloc.Load() {
		peakAlloc.Store(final.Alloc)
	}
	finalRSS := getMaxRSS()
	if finalRSS > peakRSS.Load() {
		peakRSS.Store(finalRSS)
	}

	peakHeapMem := peakAlloc.Load() - baseline.Alloc
	peakRSSMem := peakRSS.Load() - baselineRSS

	if err != nil {
		fmt.Printf("Sort failed: %v\n", err)
		return
	}

	modeStr := "buffered"
	if *mmapFlag {
		modeStr = "mapped"
	}
	inputMB := float64(inputSize) / 1_000_000

	fmt.Printf("\n")
	fmt.Printf("╔═════════════════════╦════════════════╦══════════════════╗\n")
	fmt.Printf("║ Mode: %-14s║ Workers: %-5d ║ Buffer: %4d MiB ║\n", modeStr, *workersFlag, *bufferFlag)
	fmt.Printf("╠═════════════════════╬════════════════╬══════════════════╣\n")
	fmt.Printf("║ Metric              ║ Value          ║ Note             ║\n")
	fmt.Printf("╠═════════════════════╬════════════════╬══════════════════╣\n")
	fmt.Printf("║ Records             ║ %12d   ║ -                ║\n", stats.Records)
	fmt.Printf("║ Input size          ║ %8.1f MB    ║ -                ║\n", inputMB)
	fmt.Printf("║ Spill files         ║ %12d   ║ -                ║\n", stats.Spills)
	fmt.Printf("║ Generate time       ║ %6.2f sec     ║ (not measured)   ║\n", genDuration.Seconds())
	fmt.Printf("║ Sort phase          ║ %6.2f sec     ║ chunk+sort+spill ║\n", stats.SortPhase.Seconds())
	fmt.Printf("║ Merge phase         ║ %6.2f sec     ║ k-way merge      ║\n", stats.MergePhase.Seconds())
	fmt.Printf("║ Total               ║ %6.2f sec     ║ incl. cleanup    ║\n", stats.Elapsed.Seconds())
	fmt.Printf("║ Throughput          ║ %6.2f MB/sec  ║ -                ║\n", inputMB/stats.Elapsed.Seconds())
	fmt.Printf("║ Record throughput   ║ %6.2f M/sec   ║ -                ║\n", float64(stats.Records)/stats.Elapsed.Seconds()/1_000_000)
	fmt.Printf("║ Peak heap memory    ║ %6.1f MB      ║ -                ║\n", float64(peakHeapMem)/1_000_000)
	fmt.Printf("║ Peak RSS memory     ║ %6.1f MB      ║ -                ║\n", float64(peakRSSMem)/1_000_000)
	fmt.Printf("╚═════════════════════╩════════════════╩══════════════════╝\n")
}
