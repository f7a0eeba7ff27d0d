package mapper

// Pagination tracks a page window over Total rows. Page is 1-based.
type Pagination struct {
	Page    int
	PerPage int
	Total   int64
}

// NewPagination clamps page and perPage to at least 1.
func NewPagination(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	return Pagination{Page: page, PerPage: perPage}
}

// WithTotal records the row count and pulls Page back inside the last page.
func (p Pagination) WithTotal(total int64) Pagination {
	if total < 0 {
		total = 0
	}
	p.Total = total
	if pages := p.Pages(); p.Page > pages {
		p.Page = pages
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

// Offset is the row offset of the current page.
func (p Pagination) Offset() int {
	if p.Page < 1 || p.PerPage < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// Limit is PerPage, never below 1.
func (p Pagination) Limit() int {
	if p.PerPage < 1 {
		return 1
	}
	return p.PerPage
}

// Pages is the number of pages; an empty result still has one page.
func (p Pagination) Pages() int {
	per := int64(p.Limit())
	pages := int((p.Total + per - 1) / per)
	if pages < 1 {
		return 1
	}
	return pages
}

func (p Pagination) HasPrev() bool { return p.Page > 1 }
func (p Pagination) HasNext() bool { return p.Page < p.Pages() }
func (p Pagination) Prev() int     { return max(p.Page-1, 1) }
func (p Pagination) Next() int     { return min(p.Page+1, p.Pages()) }

// Window returns up to size page numbers centred on the current page.
func (p Pagination) Window(size int) []int {
	pages := p.Pages()
	if size < 1 {
		size = 1
	}
	if size > pages {
		size = pages
	}
	start := p.Page - size/2
	if start < 1 {
		start = 1
	}
	if end := start + size - 1; end > pages {
		start = pages - size + 1
	}
	out := make([]int, size)
	for i := range out {
		out[i] = start + i
	}
	return out
}
