package users

import (
	"net/url"
	"strconv"
	"strings"

	"userhub/cmd/identity"
	"userhub/cmd/internal/httpx"
)

// parseListQuery reads filter, sort and paging parameters. Out-of-range page and limit
// values are clamped by identity.ListQuery.Normalized; malformed values are rejected.
func parseListQuery(vals url.Values) (identity.ListQuery, error) {
	var (
		q identity.ListQuery
		v httpx.Validator
	)

	q.Search = strings.TrimSpace(vals.Get("search"))

	if raw := strings.TrimSpace(vals.Get("role")); raw != "" {
		role, ok := identity.ParseRole(raw)
		v.Check(ok, "role", "Role must be one of admin, user, moderator")
		q.Role = role
	}

	switch strings.ToLower(strings.TrimSpace(vals.Get("isActive"))) {
	case "true":
		b := true
		q.IsActive = &b
	case "false":
		b := false
		q.IsActive = &b
	}

	q.Page = parsePositive(&v, vals, "page", "Page must be a positive integer")
	q.Limit = parsePositive(&v, vals, "limit", "Limit must be a positive integer")

	if raw := strings.TrimSpace(vals.Get("sortBy")); raw != "" {
		v.Check(identity.IsSortField(raw), "sortBy",
			"Sort field must be one of "+strings.Join(identity.SortFields(), ", "))
		q.SortBy = raw
	}
	if raw := strings.ToLower(strings.TrimSpace(vals.Get("sortOrder"))); raw != "" {
		v.Check(raw == "asc" || raw == "desc", "sortOrder", "Sort order must be asc or desc")
		q.SortOrder = raw
	}

	if err := v.Err(); err != nil {
		return identity.ListQuery{}, err
	}
	return q.Normalized(), nil
}

func parsePositive(v *httpx.Validator, vals url.Values, key, msg string) int {
	raw := strings.TrimSpace(vals.Get(key))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	v.Check(err == nil && n > 0, key, msg)
	return n
}
