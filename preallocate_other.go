//go:build !linux && !darwin

package linesort

import "os"

// preallocate is a no-op on platforms without a size-preserving reservation
// call. Writes still fail normally when the disk fills up.
func preallocate(file *os.File, size int64) error {
	return nil
}
