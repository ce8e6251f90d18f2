// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of applications returned by a list call.
const PageSize = 50

// MaxPageSize caps the limit a caller may ask for.
const MaxPageSize = 500

// Window is an offset/limit slice of a sorted list.
type Window struct {
	Offset int
	Limit  int
}

// LimitPlusOne returns the limit to query with for look-ahead pagination
// (fetch one extra row to detect a next page).
func (w Window) LimitPlusOne() int { return w.Limit + 1 }

// ParseWindow reads the "offset" and "limit" query parameters. Missing or
// invalid values fall back to 0 and PageSize; limits above MaxPageSize
// are capped.
func ParseWindow(r *http.Request) Window {
	return Window{
		Offset: parseInt(query.Get(r, "offset"), 0, 0),
		Limit:  clampLimit(parseInt(query.Get(r, "limit"), PageSize, 1)),
	}
}

func parseInt(s string, def, min int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		return def
	}
	return n
}

func clampLimit(n int) int {
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// Result holds the pagination indicators of a trimmed page.
type Result struct {
	Offset     int  `json:"offset"`
	Limit      int  `json:"limit"`
	Returned   int  `json:"returned"`
	HasPrev    bool `json:"hasPrev"`
	HasNext    bool `json:"hasNext"`
	NextOffset int  `json:"nextOffset,omitempty"`
	PrevOffset int  `json:"prevOffset"`
}

// TrimPage trims rows fetched with w.LimitPlusOne() to w.Limit and
// reports whether neighbouring pages exist.
func TrimPage[T any](rows *[]T, w Window) Result {
	res := Result{Offset: w.Offset, Limit: w.Limit, HasPrev: w.Offset > 0}
	if len(*rows) > w.Limit {
		*rows = (*rows)[:w.Limit]
		res.HasNext = true
	}
	res.Returned = len(*rows)
	if res.HasNext {
		res.NextOffset = w.Offset + res.Returned
	}
	if prev := w.Offset - w.Limit; prev > 0 {
		res.PrevOffset = prev
	}
	return res
}
