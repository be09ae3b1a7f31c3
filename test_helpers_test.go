package linesort

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/tamirms/linesort/internal/record"
)

// testWords is the key vocabulary for generated corpora. Small enough that
// keys repeat and the sequence tie-break is exercised.
var testWords = []string{
	"apple", "banana", "cherry", "date", "elderberry", "fig", "grape",
	"Apple", "apple pie", "apples", "b", "zz top", "", "a.b.c", "kiwi",
}

// generateLines creates n deterministic pseudo-random record lines.
func generateLines(rng *rand.Rand, n int) []string {
	lines := make([]string, n)
	for i := range lines {
		word := testWords[rng.IntN(len(testWords))]
		lines[i] = fmt.Sprintf("%d. %s", rng.IntN(1000), word)
	}
	return lines
}

// writeInput writes lines joined by terminator (plus a trailing one) into
// dir and returns the path.
func writeInput(t testing.TB, dir string, lines []string, terminator string) string {
	t.Helper()
	path := filepath.Join(dir, "source.txt")
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteString(terminator)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// readLines returns the '\n'-separated lines of a file. Fails if the file
// does not end with '\n' or holds a '\r'.
func readLines(t testing.TB, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		return nil
	}
	if data[len(data)-1] != '\n' {
		t.Fatalf("%s does not end with a newline", path)
	}
	if strings.ContainsRune(string(data), '\r') {
		t.Fatalf("%s contains a carriage return", path)
	}
	return strings.Split(string(data[:len(data)-1]), "\n")
}

// referenceSort sorts non-empty lines in memory with the same comparator.
func referenceSort(t testing.TB, lines []string) []string {
	t.Helper()
	recs := make([]record.Record, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		r, err := record.Default.Parse([]byte(l))
		if err != nil {
			t.Fatalf("Parse(%q): %v", l, err)
		}
		recs = append(recs, r)
	}
	slices.SortFunc(recs, record.Compare)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = string(r.Line())
	}
	return out
}

// assertSorted fails if any adjacent pair of lines is out of order.
func assertSorted(t testing.TB, lines []string) {
	t.Helper()
	for i := 1; i < len(lines); i++ {
		a, err := record.Default.Parse([]byte(lines[i-1]))
		if err != nil {
			t.Fatalf("line %d: %v", i-1, err)
		}
		b, err := record.Default.Parse([]byte(lines[i]))
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if record.Compare(a, b) > 0 {
			t.Fatalf("line %d %q sorts after line %d %q", i-1, lines[i-1], i, lines[i])
		}
	}
}

// assertSameMultiset fails unless got and want hold the same lines.
func assertSameMultiset(t testing.TB, got, want []string) {
	t.Helper()
	g := slices.Clone(got)
	w := slices.Clone(want)
	slices.Sort(g)
	slices.Sort(w)
	if !slices.Equal(g, w) {
		t.Fatalf("record multiset differs: got %d lines, want %d", len(g), len(w))
	}
}

// assertNoSpills fails if any spill directory is left under dir.
func assertNoSpills(t testing.TB, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "linesort-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) > 0 {
		t.Fatalf("spill state left behind: %v", matches)
	}
}

// newTestSpillSet creates a spill set under a test temp dir.
func newTestSpillSet(t testing.TB) *spillSet {
	t.Helper()
	s, err := newSpillSet(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.cleanup() })
	return s
}

// newTestSorter returns a sorter wired to a fresh spill set, for driving
// chunk sorting and merging directly.
func newTestSorter(t testing.TB, opts ...Option) *sorter {
	t.Helper()
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &sorter{
		cfg:    cfg,
		input:  "test-input",
		spills: newTestSpillSet(t),
		pool:   newChunkPool(cfg.bufferSize),
	}
}
