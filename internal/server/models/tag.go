package models

// Tag groups node-local results within a project.
type Tag struct {
	ID        int64
	Name      string
	ProjectID string
}

// TaggedResult links a local result file to a tag.
type TaggedResult struct {
	TagID    int64
	ResultID string
	// Filename is the original upload filename, kept for listings.
	Filename string
}
