package linesort

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	lserrors "github.com/tamirms/linesort/errors"
)

// spillInfo is what the chunk sorter recorded about a spill file, checked
// again when the merge drains it.
type spillInfo struct {
	records int64
	bytes   int64
	digest  uint64 // xxHash64 of the file contents
}

// spillSet allocates spill file ids and removes the files after the merge.
//
// Ids are handed out 1, 2, 3, ... by a single atomic counter, so concurrent
// chunk sorters never collide and the final set is exactly 1..count().
// Spill files live in a private per-run directory.
type spillSet struct {
	dir  string
	next atomic.Int64

	mu   sync.Mutex
	info map[int64]spillInfo
}

// newSpillSet creates the per-run spill directory under parent.
func newSpillSet(parent string) (*spillSet, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	dir, err := os.MkdirTemp(parent, "linesort-*")
	if err != nil {
		return nil, err
	}
	return &spillSet{
		dir:  dir,
		info: make(map[int64]spillInfo),
	}, nil
}

// allocate returns the next spill id.
func (s *spillSet) allocate() int64 {
	return s.next.Add(1)
}

// count returns the highest id handed out so far.
func (s *spillSet) count() int64 {
	return s.next.Load()
}

func (s *spillSet) path(id int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("spill-%06d.tmp", id))
}

// commit records the contents of a finished spill file.
func (s *spillSet) commit(id int64, info spillInfo) {
	s.mu.Lock()
	s.info[id] = info
	s.mu.Unlock()
}

// lookup returns what was committed for id.
func (s *spillSet) lookup(id int64) (spillInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.info[id]
	return info, ok
}

// totalBytes returns the combined size of all committed spill files.
func (s *spillSet) totalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, info := range s.info {
		n += info.bytes
	}
	return n
}

// cleanup removes spill files 1..count() and the run directory.
// Missing files are not an error (a failed sorter may never have created
// its file). Failures are joined and reported, not retried.
// Idempotent: safe to call on both error and success paths.
func (s *spillSet) cleanup() error {
	if s.dir == "" {
		return nil
	}
	var errs []error
	for id := int64(1); id <= s.count(); id++ {
		path := s.path(id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, lserrors.At(lserrors.StageCleanup, path, err))
		}
	}
	if err := os.Remove(s.dir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, lserrors.At(lserrors.StageCleanup, s.dir, err))
	}
	s.dir = ""
	return errors.Join(errs...)
}
