package contentstore

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finitefield.org/hanko-sitemap/internal/domain"
)

const defaultTraverseConcurrency = 4

// BFSTraverser walks the page tree breadth first. Pages are emitted level by level and, within
// a level, in the order their parents listed them, so the result is deterministic for a fixed tree.
type BFSTraverser struct {
	// Concurrency bounds in-flight fetches within a level. Zero uses a default of 4.
	Concurrency int
	// MaxPages stops discovery once this many pages are collected. Zero means unbounded.
	MaxPages int
	Logger   *zap.Logger
}

// TraversePages implements Traverser. Fetch failures are logged and recorded as nil entries;
// only cancellation of ctx aborts the walk. Non-root pages whose space differs from rootSpaceID
// are skipped together with their subtrees.
func (t *BFSTraverser) TraversePages(ctx context.Context, rootPageID, rootSpaceID string, fetch FetchFunc) (*domain.PageMap, error) {
	if fetch == nil {
		return nil, errors.New("contentstore: fetch function is required")
	}
	root := domain.NormalizeRawPageID(rootPageID)
	if root == "" {
		return nil, errors.New("contentstore: root page id is required")
	}

	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := t.Concurrency
	if limit <= 0 {
		limit = defaultTraverseConcurrency
	}

	pages := domain.NewPageMap()
	seen := map[domain.RawPageID]struct{}{root: {}}
	level := []domain.RawPageID{root}

	for len(level) > 0 {
		if t.MaxPages > 0 {
			remaining := t.MaxPages - pages.Len()
			if remaining <= 0 {
				break
			}
			if len(level) > remaining {
				logger.Warn("page limit reached, truncating traversal",
					zap.Int("max_pages", t.MaxPages),
					zap.Int("dropped", len(level)-remaining),
				)
				level = level[:remaining]
			}
		}

		records := make([]*domain.PageRecord, len(level))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, id := range level {
			g.Go(func() error {
				rec, err := fetch(gctx, id)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					logger.Warn("page fetch failed",
						zap.String("page_id", string(id)),
						zap.Bool("transient", errors.Is(err, ErrStoreUnavailable)),
						zap.Error(err),
					)
					return nil
				}
				records[i] = rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []domain.RawPageID
		for i, id := range level {
			rec := records[i]
			if rec != nil && id != root && outsideSpace(rec, rootSpaceID) {
				logger.Debug("skipping page outside root space",
					zap.String("page_id", string(id)),
					zap.String("space_id", rec.SpaceID),
				)
				continue
			}
			pages.Set(id, rec)
			if rec == nil {
				continue
			}
			for _, child := range rec.ChildIDs {
				childID := domain.NormalizeRawPageID(string(child))
				if childID == "" {
					continue
				}
				if _, ok := seen[childID]; ok {
					continue
				}
				seen[childID] = struct{}{}
				next = append(next, childID)
			}
		}
		level = next
	}
	return pages, nil
}

func outsideSpace(rec *domain.PageRecord, rootSpaceID string) bool {
	return rootSpaceID != "" && rec.SpaceID != "" && rec.SpaceID != rootSpaceID
}
