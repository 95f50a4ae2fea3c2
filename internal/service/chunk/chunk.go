// Package chunk splits long recipe text into overlapping pieces for retrieval.
package chunk

import (
	"errors"
	"strings"
)

const (
	DefaultMaxChunkSize = 1000
	DefaultOverlap      = 200

	// Boundary search window around the hard edge, and how far before the
	// edge a break may be accepted.
	lookback  = 100
	lookahead = 50
	snapRange = 200
)

var (
	ErrInvalidSize    = errors.New("chunk: max chunk size must be positive")
	ErrInvalidOverlap = errors.New("chunk: overlap must be non-negative and smaller than max chunk size")
)

// Split cuts text into chunks of about maxChunkSize characters, each
// overlapping the previous by up to overlap characters. Chunk edges snap to
// the last newline, or failing that the last period, near the hard edge.
// Sizes are counted in runes.
func Split(text string, maxChunkSize, overlap int) ([]string, error) {
	if maxChunkSize <= 0 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, ErrInvalidOverlap
	}

	runes := []rune(text)
	n := len(runes)
	if n <= maxChunkSize {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + maxChunkSize
		if end >= n {
			end = n
		} else if idx := boundary(runes, start, end); idx >= 0 {
			end = idx + 1
		}

		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks, nil
}

// boundary returns the index of the preferred break rune near the hard edge
// end, or -1 when none qualifies.
func boundary(runes []rune, start, end int) int {
	lo := end - lookback
	if lo < start {
		lo = start
	}
	hi := end + lookahead
	if hi > len(runes) {
		hi = len(runes)
	}
	floor := end - snapRange

	if idx := lastIndex(runes, lo, hi, '\n'); idx >= 0 && idx > floor {
		return idx
	}
	if idx := lastIndex(runes, lo, hi, '.'); idx >= 0 && idx > floor {
		return idx
	}
	return -1
}

func lastIndex(runes []rune, lo, hi int, r rune) int {
	for i := hi - 1; i >= lo; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
