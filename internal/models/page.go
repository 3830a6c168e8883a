package models

const (
	// DefaultPageLimit applies when a listing asks for no limit
	DefaultPageLimit = 10
	// MaxPageLimit caps listing pages
	MaxPageLimit = 100
)

// NormalizePage applies the default and maximum page sizes
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// NewPage wraps a listing result with its paging metadata. LastPage is
// ceil(total/limit).
func NewPage[T any](items []T, total, page, limit int) Page[T] {
	if items == nil {
		items = []T{}
	}
	last := 0
	if limit > 0 {
		last = (total + limit - 1) / limit
	}
	return Page[T]{
		Items:    items,
		Total:    total,
		Page:     page,
		Limit:    limit,
		LastPage: last,
	}
}
