package linesort

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	lserrors "github.com/tamirms/linesort/errors"
)

// collectRead runs readChunks over input and copies every emitted chunk.
func collectRead(t *testing.T, input string, capacity int) ([]string, int64, error) {
	t.Helper()
	var chunks []string
	n, err := readChunks(context.Background(), strings.NewReader(input), make([]byte, capacity),
		func(c chunk) error {
			chunks = append(chunks, string(c.data))
			return nil
		})
	return chunks, n, err
}

func collectMapped(t *testing.T, input string, capacity int) ([]string, int64, error) {
	t.Helper()
	var chunks []string
	n, err := mappedChunks(context.Background(), []byte(input), capacity,
		func(c chunk) error {
			chunks = append(chunks, string(c.data))
			return nil
		})
	return chunks, n, err
}

type chunkerFunc func(t *testing.T, input string, capacity int) ([]string, int64, error)

var chunkers = []struct {
	name string
	fn   chunkerFunc
}{
	{"read", collectRead},
	{"mapped", collectMapped},
}

func TestChunkerSingleChunk(t *testing.T) {
	input := "3..banana\n1..apple\n10..apple\n"
	for _, ck := range chunkers {
		t.Run(ck.name, func(t *testing.T) {
			chunks, n, err := ck.fn(t, input, 1024)
			if err != nil {
				t.Fatal(err)
			}
			if len(chunks) != 1 || chunks[0] != input {
				t.Errorf("chunks = %q, want one chunk with the whole input", chunks)
			}
			if n != int64(len(input)) {
				t.Errorf("consumed %d bytes, want %d", n, len(input))
			}
		})
	}
}

// TestChunkerCapacityEqualsFirstRecord forces chunk boundaries at the exact
// record length, with and without counting the terminator.
func TestChunkerCapacityEqualsFirstRecord(t *testing.T) {
	records := []string{"3..banana", "1..apple", "10..apple"}

	for _, terminator := range []string{"\n", "\r\n"} {
		input := strings.Join(records, terminator) + terminator
		for _, ck := range chunkers {
			for _, capacity := range []int{len(records[0]), len(records[0]) + 1, len(records[0]) + len(terminator)} {
				name := fmt.Sprintf("%s/%q/capacity=%d", ck.name, terminator, capacity)
				t.Run(name, func(t *testing.T) {
					chunks, n, err := ck.fn(t, input, capacity)
					if err != nil {
						t.Fatal(err)
					}
					var got []string
					for _, c := range chunks {
						for _, l := range strings.Split(c, "\n") {
							if l = strings.TrimSuffix(l, "\r"); l != "" {
								got = append(got, l)
							}
						}
					}
					if strings.Join(got, "|") != strings.Join(records, "|") {
						t.Errorf("records = %q, want %q", got, records)
					}
					if n != int64(len(input)) {
						t.Errorf("consumed %d bytes, want %d", n, len(input))
					}
				})
			}
		}
	}
}

// TestChunkerExactFitOffsets checks that the input offset after an exact-fit
// chunk skips the whole terminator.
func TestChunkerExactFitOffsets(t *testing.T) {
	for _, terminator := range []string{"\n", "\r\n"} {
		input := "12345" + terminator + "1. ab" + terminator
		for _, ck := range []struct {
			name string
			run  func(emitFunc) error
		}{
			{"read", func(e emitFunc) error {
				_, err := readChunks(context.Background(), strings.NewReader(input), make([]byte, 5), e)
				return err
			}},
			{"mapped", func(e emitFunc) error {
				_, err := mappedChunks(context.Background(), []byte(input), 5, e)
				return err
			}},
		} {
			var offsets []int64
			err := ck.run(func(c chunk) error {
				if strings.TrimRight(string(c.data), "\r\n") != "" {
					offsets = append(offsets, c.offset)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("%s %q: %v", ck.name, terminator, err)
			}
			want := []int64{0, int64(5 + len(terminator))}
			if !slices.Equal(offsets, want) {
				t.Errorf("%s %q: offsets = %v, want %v", ck.name, terminator, offsets, want)
			}
		}
	}
}

func TestRecordTerminators(t *testing.T) {
	tests := []struct {
		rest     string
		complete bool
		consumed int
	}{
		{"", true, 0},
		{"\n1. a", true, 1},
		{"\r\n1. a", true, 2},
		{"\r", true, 1},
		{"x", false, 1},
		{"\rx", false, 2},
		{"\r\r\n", false, 2},
	}
	for _, tt := range tests {
		complete, consumed, err := recordEndsHere(strings.NewReader(tt.rest))
		if err != nil || complete != tt.complete || (complete && consumed != tt.consumed) {
			t.Errorf("recordEndsHere(%q) = %v, %d, %v; want %v, %d", tt.rest, complete, consumed, err, tt.complete, tt.consumed)
		}
		n := terminatorLen([]byte(tt.rest))
		if (n >= 0) != tt.complete || (tt.complete && n != tt.consumed) {
			t.Errorf("terminatorLen(%q) = %d, want complete=%v length %d", tt.rest, n, tt.complete, tt.consumed)
		}
	}
}

func TestChunkerRecordTooLarge(t *testing.T) {
	inputs := []string{
		"1. short\n2. this record is much longer than the buffer\n3. x\n",
		// A '\r' inside the text is not a terminator.
		"1. abcdefghijklm\rxyz\r\n",
	}
	for _, input := range inputs {
		for _, ck := range chunkers {
			t.Run(ck.name, func(t *testing.T) {
				_, _, err := ck.fn(t, input, 16)
				if !errors.Is(err, lserrors.ErrRecordTooLarge) {
					t.Errorf("%q: err = %v, want ErrRecordTooLarge", input, err)
				}
			})
		}
	}
}

// TestChunkerBoundaries checks for random inputs and capacities that every
// chunk holds whole lines and that the chunks together hold every line once.
func TestChunkerBoundaries(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := range 30 {
		lines := generateLines(rng, 1+rng.IntN(200))
		terminator := "\n"
		if trial%3 == 0 {
			terminator = "\r\n"
		}
		input := strings.Join(lines, terminator) + terminator
		// The buffer may be exactly as long as the longest record, leaving
		// its terminator outside.
		maxLen := 0
		for _, l := range lines {
			maxLen = max(maxLen, len(l))
		}
		capacity := maxLen + rng.IntN(300)
		if trial%2 == 0 {
			capacity = maxLen
		}

		for _, ck := range chunkers {
			chunks, n, err := ck.fn(t, input, capacity)
			if err != nil {
				t.Fatalf("trial %d %s capacity %d: %v", trial, ck.name, capacity, err)
			}
			if n != int64(len(input)) {
				t.Fatalf("trial %d %s: consumed %d bytes, want %d", trial, ck.name, n, len(input))
			}
			var got []string
			for _, c := range chunks {
				if len(c) > capacity {
					t.Fatalf("trial %d %s: chunk of %d bytes exceeds capacity %d", trial, ck.name, len(c), capacity)
				}
				for _, l := range strings.Split(c, "\n") {
					got = append(got, strings.TrimSuffix(l, "\r"))
				}
			}
			// Every chunk ends on a boundary, so splitting chunks yields the
			// original lines, apart from the empty tail after the final newline.
			if got[len(got)-1] == "" {
				got = got[:len(got)-1]
			}
			if strings.Join(got, "\n") != strings.Join(lines, "\n") {
				t.Fatalf("trial %d %s capacity %d: lines differ after chunking", trial, ck.name, capacity)
			}
		}
	}
}

// TestReadChunksShortReads checks boundary handling when the reader returns
// one byte at a time.
func TestReadChunksShortReads(t *testing.T) {
	input := "2. b\n1. a\n3. c\n"
	var all bytes.Buffer
	_, err := readChunks(context.Background(), iotest.OneByteReader(strings.NewReader(input)), make([]byte, 7),
		func(c chunk) error {
			all.Write(c.data)
			if !bytes.HasSuffix(c.data, []byte{'\n'}) {
				all.WriteByte('\n')
			}
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if all.String() != input {
		t.Errorf("reassembled %q, want %q", all.String(), input)
	}
}

func TestReadChunksReaderError(t *testing.T) {
	boom := errors.New("disk on fire")
	r := iotest.ErrReader(boom)
	_, err := readChunks(context.Background(), r, make([]byte, 64), func(chunk) error { return nil })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestChunkerEmitError(t *testing.T) {
	stop := errors.New("stop")
	input := strings.Repeat("1. abcdef\n", 10)
	for _, ck := range []struct {
		name string
		run  func(emitFunc) error
	}{
		{"read", func(e emitFunc) error {
			_, err := readChunks(context.Background(), strings.NewReader(input), make([]byte, 20), e)
			return err
		}},
		{"mapped", func(e emitFunc) error {
			_, err := mappedChunks(context.Background(), []byte(input), 20, e)
			return err
		}},
	} {
		t.Run(ck.name, func(t *testing.T) {
			calls := 0
			err := ck.run(func(chunk) error {
				calls++
				return stop
			})
			if !errors.Is(err, stop) || calls != 1 {
				t.Errorf("err = %v after %d calls, want %v after 1", err, calls, stop)
			}
		})
	}
}

func TestChunkerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := readChunks(ctx, strings.NewReader("1. a\n"), make([]byte, 8), func(chunk) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestChunkPool(t *testing.T) {
	p := newChunkPool(16)
	src := []byte("1. a\n2. b")
	owned := p.own(chunk{data: src, offset: 5})
	if owned.buf == nil || owned.offset != 5 || string(owned.data) != string(src) {
		t.Fatalf("own() = %+v", owned)
	}
	src[0] = 'X'
	if owned.data[0] != '1' {
		t.Error("owned chunk aliases the producer buffer")
	}
	if again := p.own(owned); again.buf != owned.buf {
		t.Error("own() copied an already owned chunk")
	}
	p.put(owned)
	p.put(chunk{data: src}) // Borrowed chunks are ignored
}
