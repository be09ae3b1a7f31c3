package linesort

import (
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

// fingerprint is an order-independent digest of a multiset of record lines:
// the wrapping sum of xxh3 hashes of every line, plus a count. Two runs over
// the same records in any order produce the same fingerprint.
type fingerprint struct {
	sum   atomic.Uint64
	count atomic.Int64
}

// lineHash is the per-record term of a fingerprint.
func lineHash(line []byte) uint64 {
	return xxh3.Hash(line)
}

// add folds a partial sum computed by one chunk sorter.
func (f *fingerprint) add(sum uint64, count int64) {
	f.sum.Add(sum)
	f.count.Add(count)
}

func (f *fingerprint) load() (uint64, int64) {
	return f.sum.Load(), f.count.Load()
}
