package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"GiB", 30},
	{"MiB", 20},
	{"KiB", 10},
	{"B", 0},
}

// parseSize parses a byte count such as "4096", "512KiB" or "1GiB".
func parseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	shift := uint(0)
	for _, u := range sizeUnits {
		if rest, ok := strings.CutSuffix(s, u.suffix); ok {
			s = strings.TrimSpace(rest)
			shift = u.shift
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n <= 0 {
		return 0, errors.New("size must be positive")
	}
	if n > (1<<62)>>shift {
		return 0, fmt.Errorf("size %d<<%d overflows", n, shift)
	}
	return int(n << shift), nil
}

// formatSize renders n with the largest binary unit that keeps it >= 1.
func formatSize(n int64) string {
	for _, u := range sizeUnits[:3] {
		if n >= 1<<u.shift {
			return fmt.Sprintf("%.1f %s", float64(n)/float64(int64(1)<<u.shift), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", n)
}
