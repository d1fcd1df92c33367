package sitemap

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/hanko-sitemap/internal/domain"
)

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	svc, err := NewService(ServiceDeps{
		Builder:    newTestBuilder(t, store, nil),
		RootPageID: "P0",
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return svc
}

func TestServiceMemoisesSiteMap(t *testing.T) {
	store := newFakeStore(rec("P0", "Home", "", "P1"), rec("P1", "About", "2024-01-01T00:00:00Z"))
	svc := newTestService(t, store)

	first, err := svc.GetSiteMap(context.Background())
	require.NoError(t, err)
	second, err := svc.GetSiteMap(context.Background())
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, store.callsFor("P0"))
	require.Equal(t, 1, store.callsFor("P1"))
}

func TestServiceConcurrentFirstCallsTraverseOnce(t *testing.T) {
	store := newFakeStore(rec("P0", "Home", "", "P1"), rec("P1", "About", ""))
	svc := newTestService(t, store)

	const callers = 12
	maps := make([]*domain.SiteMap, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			maps[i], errs[i] = svc.GetSiteMap(context.Background())
		}()
	}
	wg.Wait()

	for i := range maps {
		require.NoError(t, errs[i])
		require.Same(t, maps[0], maps[i])
	}
	require.Equal(t, 1, store.callsFor("P0"))
}

func TestServiceRetriesAfterFailedBuild(t *testing.T) {
	store := newFakeStore(rec("P0", "Home", "", "P1"))
	svc := newTestService(t, store)

	sm, err := svc.GetSiteMap(context.Background())
	require.Nil(t, sm)
	var missing *MissingPageError
	require.ErrorAs(t, err, &missing)

	store.put(rec("P1", "About", ""))
	sm, err = svc.GetSiteMap(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.CanonicalPageID{"home", "about"}, sm.CanonicalPageMap.Keys())
	require.Equal(t, 2, store.callsFor("P0"))
}

func TestServiceRefreshAndInvalidateRebuild(t *testing.T) {
	store := newFakeStore(rec("P0", "Home", ""))
	svc := newTestService(t, store)

	first, err := svc.GetSiteMap(context.Background())
	require.NoError(t, err)

	store.put(rec("P0", "Welcome", ""))
	refreshed, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.NotSame(t, first, refreshed)
	require.True(t, refreshed.CanonicalPageMap.Has("welcome"))

	svc.Invalidate()
	again, err := svc.GetSiteMap(context.Background())
	require.NoError(t, err)
	require.NotSame(t, refreshed, again)
	require.Equal(t, 3, store.callsFor("P0"))
}

func TestNewServiceValidatesDeps(t *testing.T) {
	_, err := NewService(ServiceDeps{RootPageID: "P0"})
	require.ErrorIs(t, err, ErrBuilderMissing)
	_, err = NewService(ServiceDeps{Builder: newTestBuilder(t, newFakeStore(), nil)})
	require.ErrorIs(t, err, ErrRootPageMissing)
}

type recordingBuilder struct {
	mu    sync.Mutex
	roots [][2]string
}

func (r *recordingBuilder) Build(_ context.Context, rootPageID, rootSpaceID string) (*domain.SiteMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots = append(r.roots, [2]string{rootPageID, rootSpaceID})
	return &domain.SiteMap{}, nil
}

func TestServicePassesConfiguredRoot(t *testing.T) {
	builder := &recordingBuilder{}
	svc, err := NewService(ServiceDeps{Builder: builder, RootPageID: "root", RootSpaceID: "space"})
	require.NoError(t, err)

	_, err = svc.GetSiteMap(context.Background())
	require.NoError(t, err)
	_, err = svc.GetSiteMap(context.Background())
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"root", "space"}}, builder.roots)
}

func TestServiceLogsUnderComponentName(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc, err := NewService(ServiceDeps{
		Builder:    newTestBuilder(t, newFakeStore(rec("P0", "Home", "")), nil),
		RootPageID: "P0",
		Logger:     zap.New(core),
	})
	require.NoError(t, err)

	svc.Invalidate()

	entries := logs.FilterMessage("site map invalidated").All()
	require.Len(t, entries, 1)
	require.Equal(t, "sitemap", entries[0].LoggerName)
}
