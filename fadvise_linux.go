//go:build linux

package linesort

import (
	"os"

	"golang.org/x/sys/unix"
)

// fadviseSequential asks the kernel for aggressive readahead on f. The
// buffered producer calls it on the input before the first read; openSpill
// calls it on each spill as the merge opens it, because the merge reads all
// spills front to back in interleaved order. Errors are ignored.
func fadviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
