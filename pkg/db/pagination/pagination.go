package pagination

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

// Pagination is the offset/limit request bound from query strings.
type Pagination struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

type PageInfo struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// Normalize clamps page to >= 1 and page size into [1, MaxPageSize].
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

func (p Pagination) Limit() int {
	return p.Normalize().PageSize
}

func BuildPageInfo(p Pagination, total int64) PageInfo {
	n := p.Normalize()
	pages := int((total + int64(n.PageSize) - 1) / int64(n.PageSize))
	return PageInfo{
		Page:       n.Page,
		PageSize:   n.PageSize,
		Total:      total,
		TotalPages: pages,
		HasMore:    int64(n.Page*n.PageSize) < total,
	}
}
