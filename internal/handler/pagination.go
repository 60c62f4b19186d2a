package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// pageRequest is the limit/offset window read from the query string.
// Oversized limits are clamped to MaxLimit; anything unparsable falls back to
// the defaults.
type pageRequest struct {
	Limit  int
	Offset int
}

func parsePage(r *http.Request) pageRequest {
	q := r.URL.Query()
	p := pageRequest{Limit: DefaultLimit}

	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

type paginatedResponse[T any] struct {
	Results []T `json:"results"`
	Total   int `json:"total"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
}

func pageOf[T any](p pageRequest, results []T, total int) paginatedResponse[T] {
	if results == nil {
		results = []T{}
	}
	return paginatedResponse[T]{Results: results, Total: total, Limit: p.Limit, Offset: p.Offset}
}
