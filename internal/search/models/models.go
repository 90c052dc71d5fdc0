package models

// Result is one hit returned by a search provider.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Query describes a discovery search.
type Query struct {
	Text        string
	Limit       int
	Sites       []string
	RecencyDays int
}
