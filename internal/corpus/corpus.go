// Package corpus generates deterministic linesort inputs.
//
// Each line is "<seq>. <text>", where text is derived from murmur3 of a key
// ordinal drawn from [0, Keyspace). A small keyspace produces many duplicate
// texts, which exercises the sequence number tie-break.
package corpus

import (
	"bufio"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/spaolacci/murmur3"
)

// Alphabet maps hash nibbles to text bytes. Lowercase only, so byte order
// matches the intuitive order.
const Alphabet = "abcdefghijklmnop"

// Config describes a corpus. Equal configs produce identical corpora.
type Config struct {
	Lines    int64
	Keyspace uint64 // 0 = ordinal is the line index
	Seed     uint64
	CRLF     bool
}

// Generator writes the lines of one corpus.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config) *Generator {
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Text appends the text for a key ordinal to dst: 4 to 19 letters taken from
// the 128-bit murmur3 hash of the ordinal.
func (g *Generator) Text(dst []byte, ordinal uint64) []byte {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], ordinal)
	h1, h2 := murmur3.Sum128WithSeed(key[:], uint32(g.cfg.Seed))

	n := 4 + int(h2>>60)
	for i := range n {
		var nibble uint64
		if i < 16 {
			nibble = h1 >> (4 * i)
		} else {
			nibble = h2 >> (4 * (i - 16))
		}
		dst = append(dst, Alphabet[nibble&0xf])
	}
	return dst
}

// WriteTo writes every line to w and returns the bytes written. A Generator
// is consumed by one call.
func (g *Generator) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriterSize(w, 1<<20)
	var written int64
	line := make([]byte, 0, 64)
	for i := range g.cfg.Lines {
		ordinal := uint64(i)
		if g.cfg.Keyspace > 0 {
			ordinal = g.rng.Uint64N(g.cfg.Keyspace)
		}
		seq := g.rng.Int64N(g.cfg.Lines)

		line = strconv.AppendInt(line[:0], seq, 10)
		line = append(line, '.', ' ')
		line = g.Text(line, ordinal)
		if g.cfg.CRLF {
			line = append(line, '\r')
		}
		line = append(line, '\n')

		n, err := bw.Write(line)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// WriteFile creates path and writes the corpus described by cfg to it.
func WriteFile(path string, cfg Config) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := New(cfg).WriteTo(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
