//go:build !linux

package linesort

import "os"

// fadviseSequential does nothing here; produceAndSort and openSpill rely on
// the default readahead.
func fadviseSequential(*os.File) {}
