package request

import (
	"fmt"
	"net/http"
	"strconv"
)

// Pagination holds parsed pagination parameters. Cursor is the id of the
// last job of the previous page.
type Pagination struct {
	Limit  int
	Cursor string
}

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ParsePagination extracts limit and cursor from query parameters. Limits
// above MaxLimit are clamped.
func ParsePagination(r *http.Request) (Pagination, error) {
	p := Pagination{
		Limit:  DefaultLimit,
		Cursor: r.URL.Query().Get("cursor"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return p, fmt.Errorf("invalid limit %q", limitStr)
		}
		p.Limit = min(limit, MaxLimit)
	}
	return p, nil
}
