package ports

import "context"

// Item is a catalog entry the assistant can recommend.
type Item struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Price       float64  `json:"price" yaml:"price"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Snippet is a ranked knowledge-base excerpt.
type Snippet struct {
	ID    string  `json:"id" yaml:"id"`
	Title string  `json:"title" yaml:"title"`
	Body  string  `json:"body" yaml:"body"`
	Score float64 `json:"score" yaml:"-"`
}

// ItemQuery filters a catalog search.
type ItemQuery struct {
	Keywords    string
	Preferences map[string]string
	Limit       int
}

// Catalog is the read-only item search.
type Catalog interface {
	Search(ctx context.Context, q ItemQuery) ([]Item, error)
}

// Knowledge is the read-only policy and FAQ search.
type Knowledge interface {
	Lookup(ctx context.Context, query string, limit int) ([]Snippet, error)
}
