package models

import (
	"time"

	"github.com/google/uuid"
)

// Suggestion is a single generated campaign idea.
type Suggestion struct {
	Position  int    `db:"position"  json:"position"`
	Title     string `db:"title"     json:"title"`
	Rationale string `db:"rationale" json:"rationale"`
	Channel   string `db:"channel"   json:"channel"`
}

// SuggestionSet is the ordered collection of suggestions produced for one
// job. Sets are immutable once persisted; a retry that re-runs generation
// writes a new set with a higher version instead of mutating in place.
type SuggestionSet struct {
	ID          uuid.UUID    `db:"id"         json:"id"`
	JobID       uuid.UUID    `db:"job_id"     json:"job_id"`
	ProfileID   uuid.UUID    `db:"profile_id" json:"profile_id"`
	Version     int          `db:"version"    json:"version"`
	Provider    string       `db:"provider"   json:"provider"`
	Model       string       `db:"model"      json:"model"`
	Suggestions []Suggestion `json:"suggestions"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
