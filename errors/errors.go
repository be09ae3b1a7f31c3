// Package errors defines all exported error sentinels for the linesort library.
//
// This is the single source of truth for error values. Both the top-level
// linesort package and internal packages import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	ErrInvalidBufferSize = errors.New("linesort: buffer size must be positive")
	ErrInvalidDelimiter  = errors.New("linesort: invalid record delimiter")
	ErrSameFile          = errors.New("linesort: input and output are the same file")
)

// Input errors
var (
	ErrMalformedRecord = errors.New("linesort: malformed record")
	ErrRecordTooLarge  = errors.New("linesort: record exceeds buffer capacity")
)

// Merge and verification errors
var (
	ErrSpillCorrupted = errors.New("linesort: spill file does not match what was written")
	ErrOutputUnsorted = errors.New("linesort: output is not in sort order")
	ErrDigestMismatch = errors.New("linesort: output records differ from input records")
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageRead    Stage = "read"
	StageParse   Stage = "parse"
	StageSort    Stage = "sort"
	StageWrite   Stage = "write"
	StageMerge   Stage = "merge"
	StageCleanup Stage = "cleanup"
)

// StageError reports which stage failed and on which file.
// Every error returned by linesort.Sort is, or joins, a *StageError.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// At wraps err as a *StageError. Returns nil if err is nil.
func At(stage Stage, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Path: path, Err: err}
}
