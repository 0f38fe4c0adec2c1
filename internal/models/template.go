package models

import "time"

// Template is a notification template. Title is itself a template body.
// For non-base templates Content is stored in wrapped form; for the base
// template Content contains the content-block placeholder. At most one
// template has IsBase set.
type Template struct {
	ID           int64                  `json:"id" db:"id"`
	Slug         string                 `json:"slug" db:"slug"`
	Name         string                 `json:"name" db:"name"`
	Title        string                 `json:"title" db:"title"`
	Content      string                 `json:"content" db:"content"`
	IsBase       bool                   `json:"is_base" db:"is_base"`
	Variables    []string               `json:"variables" db:"variables"`
	SearchParams map[string]interface{} `json:"search_params,omitempty" db:"search_params"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at" db:"updated_at"`
}

// Clone returns a shallow copy with its own Variables slice. Loader cache
// entries are shared between callers and must not be mutated in place.
func (t *Template) Clone() *Template {
	cp := *t
	cp.Variables = append([]string(nil), t.Variables...)
	return &cp
}
