package models

import "time"

// ReviewRecord is a single review as submitted, kept for later aggregation.
// Scores are derived on demand and never stored.
type ReviewRecord struct {
	ID          string
	Repo        string // owner/name
	PRNumber    int
	Reviewer    string
	Approved    bool
	Comment     string
	ElapsedTime float64 // seconds
	CreatedAt   time.Time
}
