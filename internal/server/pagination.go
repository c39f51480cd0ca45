package server

import (
	"net/http"
	"strconv"

	v1 "github.com/jdholdren/readersync/api/v1"
)

// parsePaginationParams reads ?offset=20&limit=10, falling back to
// defaultLimit when the limit is missing or out of range.
func parsePaginationParams(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	query := r.URL.Query()

	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}

	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

// page cuts one page out of a full listing.
func page[T any](all []T, limit, offset int) ([]T, v1.Page) {
	meta := v1.Page{Limit: limit, Offset: offset, Total: len(all)}
	if offset >= len(all) {
		return []T{}, meta
	}

	end := min(offset+limit, len(all))
	return all[offset:end], meta
}
