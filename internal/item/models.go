package item

import "time"

// SourceError describes a failure while fetching one source. Source
// failures are isolated: they are reported in the digest but never abort
// the run.
type SourceError struct {
	SourceName string
	SourceType string
	Message    string
	OccurredAt time.Time
}

// Metadata describes a generated digest.
type Metadata struct {
	Title          string
	Date           string // YYYY-MM-DD
	GeneratedAt    string // RFC 3339
	Slug           string
	SourcesFetched int
	SourcesFailed  int
	ItemsProcessed int
	TimeWindow     string
	Errors         []SourceError
}
