package models

const (
	// DefaultSearchLimit applies when a query does not set Limit.
	DefaultSearchLimit = 50

	// MaxSearchLimit caps the number of returned records.
	MaxSearchLimit = 500
)

// SearchQuery is an immutable search request. Empty fields do not filter.
// All set filters must match (conjunction).
type SearchQuery struct {
	Text     string
	Account  string
	Folder   string
	Category Category
	Limit    int
}

// EffectiveLimit clamps Limit into [1, MaxSearchLimit].
func (q SearchQuery) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultSearchLimit
	case q.Limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return q.Limit
	}
}

// Matches reports whether e satisfies the equality filters of q.
// The text term is not evaluated here.
func (q SearchQuery) Matches(e EmailRecord) bool {
	if q.Account != "" && e.Account != q.Account {
		return false
	}
	if q.Folder != "" && e.Folder != q.Folder {
		return false
	}
	if q.Category != "" && e.Category != q.Category {
		return false
	}
	return true
}
