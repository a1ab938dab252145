// Package pagination holds the list envelope shared by every list endpoint.
package pagination

import (
	"net/url"
	"strconv"
)

// DefaultLimit is the page size used when a list request does not set one.
const DefaultLimit = 10

// Params selects a page. Zero values mean Limit=DefaultLimit, Offset=0.
type Params struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Normalize applies the documented defaults and clamps negative values.
func (p Params) Normalize() Params {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// WithDefaultLimit fills in Limit from a configured page size.
func (p Params) WithDefaultLimit(limit int) Params {
	if p.Limit <= 0 && limit > 0 {
		p.Limit = limit
	}
	return p.Normalize()
}

// Encode writes limit and offset into q.
func (p Params) Encode(q url.Values) {
	p = p.Normalize()
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
}

// ParamsFromQuery reads limit and offset from a request query string.
func ParamsFromQuery(q url.Values) Params {
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return Params{Limit: limit, Offset: offset}.Normalize()
}

// Envelope is the list response shape returned by the backend.
type Envelope[T any] struct {
	Total  int  `json:"total"`
	Next   bool `json:"next"`
	Prev   bool `json:"prev"`
	Offset int  `json:"offset"`
	Limit  int  `json:"limit"`
	Data   []T  `json:"data"`
}

// NewEnvelope computes next/prev for a page of a result set of size total.
func NewEnvelope[T any](total int, p Params, data []T) Envelope[T] {
	p = p.Normalize()
	if data == nil {
		data = []T{}
	}
	return Envelope[T]{
		Total:  total,
		Next:   p.Offset+p.Limit < total,
		Prev:   p.Offset > 0,
		Offset: p.Offset,
		Limit:  p.Limit,
		Data:   data,
	}
}

// Paginate slices items to the requested page and wraps it in an Envelope.
func Paginate[T any](items []T, p Params) Envelope[T] {
	p = p.Normalize()
	total := len(items)
	if p.Offset >= total {
		return NewEnvelope[T](total, p, nil)
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return NewEnvelope(total, p, items[p.Offset:end])
}
