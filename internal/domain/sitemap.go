package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawPageID is the content store's native identifier for a page.
type RawPageID string

// CanonicalPageID is the public, URL-facing path segment derived from a page.
type CanonicalPageID string

// NormalizeRawPageID trims the identifier and rewrites UUIDs to the lowercase
// hyphenated form so equivalent spellings address the same page.
func NormalizeRawPageID(id string) RawPageID {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return RawPageID(parsed.String())
	}
	return RawPageID(id)
}

// PageRecord is the read-only view of a single content node as returned by the content store.
type PageRecord struct {
	ID      RawPageID
	SpaceID string
	Title   string
	Slug    string
	// LastEditedTime holds the raw store value; it is parsed during the build.
	LastEditedTime string
	ChildIDs       []RawPageID
}

// PageMap maps raw page ids to their records in traversal order. A nil record marks a failed fetch.
type PageMap = OrderedMap[RawPageID, *PageRecord]

// CanonicalPageMap maps canonical ids to the raw page that claimed them first.
type CanonicalPageMap = OrderedMap[CanonicalPageID, RawPageID]

// PageModDates maps canonical ids to ISO-8601 last-modified timestamps.
type PageModDates map[CanonicalPageID]string

// NewPageMap returns an empty PageMap.
func NewPageMap() *PageMap { return NewOrderedMap[RawPageID, *PageRecord]() }

// NewCanonicalPageMap returns an empty CanonicalPageMap.
func NewCanonicalPageMap() *CanonicalPageMap { return NewOrderedMap[CanonicalPageID, RawPageID]() }

// Collision records two raw pages that resolved to the same canonical id.
type Collision struct {
	CanonicalPageID CanonicalPageID
	PageID          RawPageID
	ExistingPageID  RawPageID
}

// Site carries the static site metadata merged into every SiteMap.
type Site struct {
	Name                string
	Domain              string
	Host                string
	BasePath            string
	Description         string
	RootPageID          string
	RootSpaceID         string
	IncludePageIDInURLs bool
}

// SiteMap is the immutable result of one build.
type SiteMap struct {
	Site             Site
	BuildID          string
	GeneratedAt      time.Time
	PageMap          *PageMap
	CanonicalPageMap *CanonicalPageMap
	PageModDates     PageModDates
	Collisions       []Collision
}

// ModDate returns the recorded last-modified timestamp for the canonical id, if any.
func (s *SiteMap) ModDate(id CanonicalPageID) (string, bool) {
	if s == nil || s.PageModDates == nil {
		return "", false
	}
	v, ok := s.PageModDates[id]
	return v, ok
}
