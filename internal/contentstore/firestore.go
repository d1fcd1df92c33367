package contentstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"finitefield.org/hanko-sitemap/internal/domain"
	pfirestore "finitefield.org/hanko-sitemap/internal/platform/firestore"
)

// FirestoreStore reads pages from a Firestore collection keyed by raw page id.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("contentstore: firestore provider is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, fmt.Errorf("contentstore: firestore collection is required")
	}
	return &FirestoreStore{provider: provider, collection: collection}, nil
}

// GetPage implements Store.
func (s *FirestoreStore) GetPage(ctx context.Context, pageID domain.RawPageID) (*domain.PageRecord, error) {
	if strings.TrimSpace(string(pageID)) == "" {
		return nil, fmt.Errorf("%w: empty page id", ErrPageNotFound)
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := client.Collection(s.collection).Doc(string(pageID)).Get(ctx)
	if err != nil {
		return nil, classifyGetError(pageID, err)
	}
	return recordFromFields(pageID, snap.Data()), nil
}

func classifyGetError(pageID domain.RawPageID, err error) error {
	wrapped := pfirestore.WrapError("pages.get", err)
	switch {
	case pfirestore.IsNotFound(wrapped):
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	case pfirestore.IsUnavailable(wrapped):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, wrapped)
	}
	return wrapped
}

func recordFromFields(pageID domain.RawPageID, data map[string]any) *domain.PageRecord {
	doc := pageDocument{
		ID:             stringField(data, "id"),
		SpaceID:        stringField(data, "space_id"),
		Title:          stringField(data, "title"),
		Slug:           stringField(data, "slug"),
		LastEditedTime: timestampText(timestampField(data["last_edited_time"])),
	}
	if children, ok := data["children"].([]any); ok {
		for _, child := range children {
			if s, ok := child.(string); ok {
				doc.Children = append(doc.Children, s)
			}
		}
	}
	return doc.record(pageID)
}

func stringField(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func timestampField(value any) string {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.UTC().Format(time.RFC3339Nano)
	case string:
		return strings.TrimSpace(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}
