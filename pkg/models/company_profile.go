// Package models contains shared data models used across the CampaignForge codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// CompanyProfile is the normalized description of a company derived from a
// submitted identifier. One profile per job, immutable once persisted.
type CompanyProfile struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	JobID       uuid.UUID `db:"job_id"       json:"job_id"`
	Name        string    `db:"name"         json:"name"`
	Domain      string    `db:"domain"       json:"domain"`
	Industry    string    `db:"industry"     json:"industry"`
	Description string    `db:"description"  json:"description"`
	SourceInput string    `db:"source_input" json:"source_input"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}

// DirectoryEntry is a curated row from the company directory: brand data
// maintained out of band and consulted read-only during profile extraction.
type DirectoryEntry struct {
	CompanyName     string `db:"company_name"     json:"company_name"`
	BrandVoice      string `db:"brand_voice"      json:"brand_voice"`
	TargetAudience  string `db:"target_audience"  json:"target_audience"`
	ProductCategory string `db:"product_category" json:"product_category"`
	StyleGuide      string `db:"style_guide"      json:"style_guide"`
}
