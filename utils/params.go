package utils

import (
	"net/http"
	"strconv"
)

// ParsePagination reads skip/limit query params, clamping limit to max.
func ParsePagination(r *http.Request, def, max int64) (skip, limit int64) {
	q := r.URL.Query()
	limit, _ = strconv.ParseInt(q.Get("limit"), 10, 64)
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	skip, _ = strconv.ParseInt(q.Get("skip"), 10, 64)
	if skip < 0 {
		skip = 0
	}
	return skip, limit
}
