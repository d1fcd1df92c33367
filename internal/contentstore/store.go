// Package contentstore reads page records from the backing content store and walks the page tree.
package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"finitefield.org/hanko-sitemap/internal/domain"
)

var (
	// ErrPageNotFound is returned when the store has no record for the requested id.
	ErrPageNotFound = errors.New("contentstore: page not found")
	// ErrStoreUnavailable marks transient backend failures; a later build may succeed.
	ErrStoreUnavailable = errors.New("contentstore: store unavailable")
)

// FetchFunc loads a single page record.
type FetchFunc func(ctx context.Context, pageID domain.RawPageID) (*domain.PageRecord, error)

// Store is a content store backend.
type Store interface {
	GetPage(ctx context.Context, pageID domain.RawPageID) (*domain.PageRecord, error)
}

// Traverser discovers every page reachable from a root page.
type Traverser interface {
	// TraversePages returns one entry per discovered page in traversal order. Pages whose fetch
	// failed are present with a nil record.
	TraversePages(ctx context.Context, rootPageID, rootSpaceID string, fetch FetchFunc) (*domain.PageMap, error)
}

// pageDocument is the wire shape shared by the HTTP and file backends.
type pageDocument struct {
	ID             string        `json:"id" yaml:"id"`
	SpaceID        string        `json:"space_id" yaml:"space_id"`
	Title          string        `json:"title" yaml:"title"`
	Slug           string        `json:"slug" yaml:"slug"`
	LastEditedTime timestampText `json:"last_edited_time" yaml:"last_edited_time"`
	Children       []string      `json:"children" yaml:"children"`
}

func (d pageDocument) record(requested domain.RawPageID) *domain.PageRecord {
	id := domain.NormalizeRawPageID(d.ID)
	if id == "" {
		id = requested
	}
	rec := &domain.PageRecord{
		ID:             id,
		SpaceID:        strings.TrimSpace(d.SpaceID),
		Title:          d.Title,
		Slug:           d.Slug,
		LastEditedTime: string(d.LastEditedTime),
	}
	for _, child := range d.Children {
		if childID := domain.NormalizeRawPageID(child); childID != "" {
			rec.ChildIDs = append(rec.ChildIDs, childID)
		}
	}
	return rec
}

// timestampText accepts either a string or a number and keeps its textual form.
type timestampText string

func (t *timestampText) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*t = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = timestampText(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("contentstore: last_edited_time must be a string or number: %w", err)
	}
	*t = timestampText(epochText(n.String()))
	return nil
}

func (t *timestampText) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("contentstore: last_edited_time must be a scalar (line %d)", node.Line)
	}
	if node.Tag == "!!null" {
		*t = ""
		return nil
	}
	value := strings.TrimSpace(node.Value)
	if node.Tag == "!!int" || node.Tag == "!!float" {
		value = epochText(value)
	}
	*t = timestampText(value)
	return nil
}

// epochText renders numeric epoch milliseconds as an integer string.
func epochText(value string) string {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return strconv.FormatInt(int64(f), 10)
	}
	return value
}
