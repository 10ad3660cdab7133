package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ParseSessionRange parses a 1-based position list such as "2", "1,3-5" or
// "2-3" against a chain of n sessions and returns the selected 0-based
// indexes in ascending order without duplicates.
func ParseSessionRange(expr string, n int) ([]int, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidRange)
	}

	seen := make(map[int]bool)
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("%w: empty element in %q", ErrInvalidRange, expr)
		}

		lo, hi, err := parseRangeToken(tok)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > n {
			return nil, fmt.Errorf("%w: %q outside 1-%d", ErrOutOfRange, tok, n)
		}
		for p := lo; p <= hi; p++ {
			seen[p-1] = true
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	slices.Sort(out)
	return out, nil
}

func parseRangeToken(tok string) (lo, hi int, err error) {
	loStr, hiStr, isRange := strings.Cut(tok, "-")
	lo, err = strconv.Atoi(strings.TrimSpace(loStr))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not a number", ErrInvalidRange, tok)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err = strconv.Atoi(strings.TrimSpace(hiStr))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not a number range", ErrInvalidRange, tok)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: %q runs backwards", ErrInvalidRange, tok)
	}
	return lo, hi, nil
}
