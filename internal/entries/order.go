package entries

import (
	"strings"
	"time"

	"cassa/internal/core"
)

// Comparison helpers for the canonical mirror orders.

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpTime(a, b time.Time) int { return a.Compare(b) }

func cmpDate(a, b core.Date) int { return a.Compare(b.Time) }

// cmpOptDate sorts missing dates last.
func cmpOptDate(a, b *core.Date) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmpDate(*a, *b)
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// lessBy chains comparisons; the first non-zero result decides.
func lessBy(cmps ...int) bool {
	for _, c := range cmps {
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func cmpFold(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) }
