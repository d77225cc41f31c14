package identity

import "strings"

const (
	DefaultPage      = 1
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultSortBy    = "createdAt"
	DefaultSortOrder = "desc"
)

// sortColumns maps API sort fields to columns. Anything else is rejected upstream and
// falls back to DefaultSortBy here.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
	"email":     "email",
	"role":      "role",
}

// SortFields lists the accepted sortBy values.
func SortFields() []string {
	return []string{"createdAt", "updatedAt", "name", "email", "role"}
}

// IsSortField reports whether s is an accepted sortBy value.
func IsSortField(s string) bool {
	_, ok := sortColumns[s]
	return ok
}

// ListQuery filters, sorts and pages a user listing.
type ListQuery struct {
	Search    string // case-insensitive substring of name or email
	Role      Role
	IsActive  *bool
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Normalized returns q with defaults applied and values clamped.
func (q ListQuery) Normalized() ListQuery {
	q.Search = strings.TrimSpace(q.Search)
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if !IsSortField(q.SortBy) {
		q.SortBy = DefaultSortBy
	}
	q.SortOrder = strings.ToLower(strings.TrimSpace(q.SortOrder))
	if q.SortOrder != "asc" && q.SortOrder != "desc" {
		q.SortOrder = DefaultSortOrder
	}
	return q
}

// Offset is the number of rows skipped before the requested page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes page metadata. totalPages is ceil(total/limit).
func NewPagination(page, limit, total int) Pagination {
	if limit < 1 {
		limit = DefaultLimit
	}
	if page < 1 {
		page = DefaultPage
	}
	if total < 0 {
		total = 0
	}
	totalPages := (total + limit - 1) / limit
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// ListResult is one page of users.
type ListResult struct {
	Users      []User
	Pagination Pagination
}
