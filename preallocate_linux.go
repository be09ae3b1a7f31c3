//go:build linux

package linesort

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves disk blocks for size bytes of output without changing
// the file size, so a full disk fails here instead of halfway through the merge.
// Filesystems without fallocate support skip the reservation.
func preallocate(file *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	err := unix.Fallocate(int(file.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, size)
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return nil
	}
	return err
}
