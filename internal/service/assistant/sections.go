package assistant

import "strings"

// Section is one entry of the credit memo outline.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

var sections = []Section{
	{ID: "summary", Title: "1. Executive Summary"},
	{ID: "borrower", Title: "2. Borrower Information"},
	{ID: "request", Title: "3. Loan Request"},
	{ID: "financial", Title: "4. Financial Analysis"},
	{ID: "collateral", Title: "5. Collateral Analysis"},
	{ID: "swot", Title: "6. SWOT Analysis"},
	{ID: "recommendation", Title: "7. Recommendation"},
}

// Sections returns the memo outline in display order.
func Sections() []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	return out
}

// ResolveSection maps a catalog id to its title. Anything else is used as a
// free-form title.
func ResolveSection(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, s := range sections {
		if strings.EqualFold(s.ID, ref) {
			return s.Title
		}
	}
	return ref
}
