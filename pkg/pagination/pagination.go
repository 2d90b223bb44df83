package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any page query can request.
	MaxLimit = 100
)

// Params holds offset pagination inputs from controllers or services.
// Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the page returned alongside list results.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize clamps page and limit into their valid ranges.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	p.Limit = NormalizeLimit(p.Limit)
	return p
}

// Offset returns the row offset for the normalized page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// NewMeta builds page metadata for a total row count.
func NewMeta(p Params, total int64) Meta {
	n := p.Normalize()
	pages := 0
	if total > 0 {
		pages = int((total + int64(n.Limit) - 1) / int64(n.Limit))
	}
	return Meta{
		Page:       n.Page,
		Limit:      n.Limit,
		Total:      total,
		TotalPages: pages,
	}
}
