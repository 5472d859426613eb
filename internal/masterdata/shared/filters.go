// Package shared holds the list filter plumbing common to the master data
// entities.
package shared

// ListFilters represents standard list page filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool

	// Entity specific filters
	ContactType string
}

// Normalize applies pagination defaults.
func (f *ListFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
}

// Offset returns the SQL offset for the current page.
func (f ListFilters) Offset() int {
	return (f.Page - 1) * f.Limit
}
