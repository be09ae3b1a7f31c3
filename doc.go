// Package linesort implements an external (disk-based) sort for
// line-oriented record files that are too large to sort in memory.
//
// Each record is one line of the form <integer><delimiter><padding><text>,
// for example "10. apple". Records are ordered by the text as raw bytes and,
// when texts are equal, by the integer in ascending numeric order.
//
// # Basic Usage
//
//	stats, err := linesort.Sort(ctx, "source.txt", "sorted.txt",
//	    linesort.WithBufferSize(64<<20),
//	    linesort.WithWorkers(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("sorted %d records in %v\n", stats.Records, stats.Elapsed)
//
// # Pipeline
//
// Sort runs in two phases:
//
//   - Sort phase: a producer streams the input through a fixed-size buffer
//     and cuts it into chunks that end on record boundaries. Workers parse
//     each chunk, sort it in memory and write it to a numbered spill file.
//     The producer hands chunks over through a single-slot channel, so it is
//     never more than one chunk ahead of the workers.
//   - Merge phase: every spill file is opened and a min-heap holding the next
//     record of each file repeatedly yields the smallest record to the output.
//
// The merge starts only after every worker has closed its spill file. Spill
// files are deleted once the merge finishes, and on any failure.
//
// # Package Structure
//
//   - Public API: sort.go (Sort, Stats), options.go (Option, With* functions)
//   - Sort phase: chunker.go (chunk producers), chunk_sort.go (chunk sorter)
//   - Merge phase: merge.go, internal/frontier (merge heap)
//   - Scratch files: spill.go (id allocation, cleanup)
//   - Records: internal/record (codec, comparator)
//   - Integrity: digest.go (record fingerprint), spill digests in merge.go
//   - Platform: fadvise_*.go, madvise_*.go, preallocate_*.go
//   - Tools: cmd/linesort (CLI), cmd/gencorpus and internal/corpus (test corpora), cmd/bench
package linesort
