package conversation

import "strings"

// Filter narrows the aggregated group list before pagination.
// Zero value matches everything.
type Filter struct {
	ContactType string `json:"contactType,omitempty"`
	Query       string `json:"query,omitempty"` // matched against identity and message content
}

// Match reports whether a group passes the filter.
func (f Filter) Match(g Group) bool {
	if f.ContactType != "" && string(g.ContactType) != f.ContactType {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	if strings.Contains(strings.ToLower(g.ContactIdentity), q) {
		return true
	}
	for _, m := range g.Messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			return true
		}
	}
	return false
}

// PageResult is one page of conversations. Pagination always operates
// over conversations, never over raw messages.
type PageResult struct {
	Items []Group `json:"items"`
	Total int     `json:"total"`
	Pages int     `json:"pages"`
	Page  int     `json:"page"`
}

// Page slices the filtered group list. limit <= 0 falls back to 20.
// A page past the end resets to page 1, so callers stay on a valid page
// when the unfiltered group count shrinks.
func Page(groups []Group, f Filter, page, limit int) PageResult {
	if limit <= 0 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}

	filtered := groups[:0:0]
	for _, g := range groups {
		if f.Match(g) {
			filtered = append(filtered, g)
		}
	}

	total := len(filtered)
	pages := (total + limit - 1) / limit
	if pages == 0 {
		pages = 1
	}
	if page > pages {
		page = 1
	}

	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return PageResult{
		Items: filtered[start:end],
		Total: total,
		Pages: pages,
		Page:  page,
	}
}
