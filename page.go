package querylens

import (
	"github.com/autom8ter/querylens/errors"
)

// PageMeta is the pagination metadata of a result page
type PageMeta struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
	Limit       int   `json:"limit"`
}

// ComputePage computes the page metadata of a (skip, limit, totalCount) triple.
// An out of range skip yields a current page past the last page, not an error.
func ComputePage(skip, limit int, totalCount int64) (PageMeta, error) {
	if skip < 0 {
		return PageMeta{}, errors.Newf(errors.ErrInvalidArgument, "skip must not be negative: %d", skip)
	}
	if limit <= 0 {
		return PageMeta{}, errors.Newf(errors.ErrInvalidArgument, "limit must be positive: %d", limit)
	}
	if totalCount < 0 {
		return PageMeta{}, errors.Newf(errors.ErrInvalidArgument, "total count must not be negative: %d", totalCount)
	}
	l := int64(limit)
	return PageMeta{
		CurrentPage: skip/limit + 1,
		TotalPages:  int((totalCount + l - 1) / l),
		TotalCount:  totalCount,
		Limit:       limit,
	}, nil
}

// Page is a page of documents read from a collection
type Page struct {
	PageMeta
	Collection string    `json:"collection"`
	Headers    []string  `json:"headers"`
	Data       Documents `json:"data"`
	// Query is the caller's filter. It is only set on search results.
	Query Filter `json:"query,omitempty"`
}
