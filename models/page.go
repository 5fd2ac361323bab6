package models

// Page is one page of a paginated search.
type Page[T any] struct {
	Results      []T   `json:"results"`
	ResultsCount int64 `json:"resultsCount"`
	CurrentPage  int   `json:"currentPage"`
	PagesCount   int   `json:"pagesCount"`
}

// NewPage computes the page count for total results at pageSize per page.
func NewPage[T any](results []T, total int64, page, pageSize int) Page[T] {
	if results == nil {
		results = []T{}
	}
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Page[T]{
		Results:      results,
		ResultsCount: total,
		CurrentPage:  page,
		PagesCount:   pages,
	}
}
