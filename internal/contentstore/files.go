package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"finitefield.org/hanko-sitemap/internal/domain"
)

// FileStore reads pages from <dir>/<id>.yaml, used for local development and fixtures.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: strings.TrimSpace(dir)}
}

// GetPage implements Store.
func (s *FileStore) GetPage(ctx context.Context, pageID domain.RawPageID) (*domain.PageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(string(pageID))
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrPageNotFound, pageID)
	}

	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = os.ReadFile(filepath.Join(s.dir, name+ext))
		if !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	if err != nil {
		return nil, fmt.Errorf("contentstore: read page %s: %w", pageID, err)
	}

	var doc pageDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("contentstore: parse page %s: %w", pageID, err)
	}
	return doc.record(pageID), nil
}
