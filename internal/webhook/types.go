package webhook

import (
	"github.com/mattjoyce/hooky/internal/response"
	"github.com/mattjoyce/hooky/internal/store"
)

// Paging defaults.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateInput describes a new webhook. Token is required.
type CreateInput struct {
	Token      string  `json:"token"`
	Name       *string `json:"name"`
	Visibility *string `json:"visibility"`
}

// UpdateInput is a partial change; nil fields are left alone.
type UpdateInput struct {
	Name       *string `json:"name"`
	Enabled    *bool   `json:"enabled"`
	Token      *string `json:"token"`
	Visibility *string `json:"visibility"`
}

// ListInput filters and pages a webhook listing.
type ListInput struct {
	Search string
	Page   int
	Size   int
}

// RequestQuery filters and pages a request listing.
type RequestQuery struct {
	Method string
	Page   int
	Size   int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	TotalPage   int   `json:"total_page"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"has_next_page"`
}

// Page is a page of results.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Detail is a single webhook with its request count and reply.
type Detail struct {
	store.Webhook
	RequestCount int64           `json:"request_count"`
	Response     response.Config `json:"response"`
}

// normalizePage clamps page and size to their allowed ranges.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	switch {
	case size < 1:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

func newPagination(total int64, page, size int) Pagination {
	pages := int((total + int64(size) - 1) / int64(size))
	return Pagination{
		Total:       total,
		CurrentPage: page,
		TotalPage:   pages,
		Size:        size,
		HasNextPage: page < pages,
	}
}
