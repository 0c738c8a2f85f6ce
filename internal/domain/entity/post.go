package entity

import "time"

// Post is the slice of the blog content model the syndication pipeline needs.
// The full content model (categories, tags, comments) lives in the content
// service; only published posts are ever handed to the pipeline.
type Post struct {
	ID          int64
	Title       string
	Slug        string
	Excerpt     string
	URL         string
	Published   bool
	PublishedAt *time.Time
}
