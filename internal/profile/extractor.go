// Package profile turns a submitted company identifier into a normalized
// CompanyProfile.
package profile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/forgeworks/campaignforge/internal/store"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrInvalidIdentifier    = errors.New("invalid company identifier")
	ErrDirectoryUnavailable = errors.New("company directory unavailable")
)

// domainPattern accepts domain-like identifiers: at least one dot-separated
// label pair, letters/digits/hyphens only.
var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)

// Directory is the read-only lookup the extractor performs against the
// curated company directory. A miss is reported as store.ErrNotFound.
type Directory interface {
	LookupDirectory(ctx context.Context, companyName string) (*models.DirectoryEntry, error)
}

// Extractor validates identifiers and builds company profiles.
type Extractor struct {
	dir Directory
}

func NewExtractor(dir Directory) *Extractor {
	return &Extractor{dir: dir}
}

// Normalize lowercases the identifier and strips scheme, www prefix, path,
// and surrounding whitespace. It performs no validation.
func Normalize(identifier string) string {
	s := strings.ToLower(strings.TrimSpace(identifier))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// Extract validates identifier and returns the derived profile. The curated
// directory is consulted once, read-only: a hit enriches the profile, a miss
// falls back to what the domain itself tells us. A directory read failure is
// ErrDirectoryUnavailable so the caller can retry; a malformed identifier is
// ErrInvalidIdentifier and never retried.
func (e *Extractor) Extract(ctx context.Context, identifier string) (models.CompanyProfile, error) {
	domain := Normalize(identifier)
	if domain == "" {
		return models.CompanyProfile{}, fmt.Errorf("%w: identifier is empty", ErrInvalidIdentifier)
	}
	if !domainPattern.MatchString(domain) {
		return models.CompanyProfile{}, fmt.Errorf("%w: %q is not a domain", ErrInvalidIdentifier, identifier)
	}

	name := companyLabel(domain)
	p := models.CompanyProfile{
		ID:          uuid.New(),
		Name:        displayName(name),
		Domain:      domain,
		SourceInput: identifier,
		CreatedAt:   time.Now().UTC(),
	}

	entry, err := e.dir.LookupDirectory(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return p, nil
		}
		return models.CompanyProfile{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	p.Industry = entry.ProductCategory
	p.Description = describeEntry(entry)
	return p, nil
}

// companyLabel extracts the registrable label from a domain: "acme.com" and
// "shop.acme.co.uk" both yield "acme" for common public suffixes.
func companyLabel(domain string) string {
	labels := strings.Split(domain, ".")
	if len(labels) >= 3 && len(labels[len(labels)-2]) <= 3 {
		// Two-part suffix like co.uk or com.au.
		return labels[len(labels)-3]
	}
	if len(labels) >= 2 {
		return labels[len(labels)-2]
	}
	return labels[0]
}

func displayName(label string) string {
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func describeEntry(entry *models.DirectoryEntry) string {
	parts := make([]string, 0, 3)
	if entry.BrandVoice != "" {
		parts = append(parts, "Brand voice: "+entry.BrandVoice)
	}
	if entry.TargetAudience != "" {
		parts = append(parts, "Target audience: "+entry.TargetAudience)
	}
	if entry.StyleGuide != "" {
		parts = append(parts, "Style guide: "+entry.StyleGuide)
	}
	return strings.Join(parts, ". ")
}
