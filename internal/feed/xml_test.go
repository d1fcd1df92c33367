package feed

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-sitemap/internal/domain"
)

var renderNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func homeAboutSiteMap() *domain.SiteMap {
	canonical := domain.NewCanonicalPageMap()
	canonical.Set("home", "P0")
	canonical.Set("about", "P1")
	canonical.Set("ガイド", "P2")
	return &domain.SiteMap{
		Site:             domain.Site{Host: "https://hanko.example.com/", BasePath: "/blog"},
		BuildID:          "01HZXJ6Q7R1ZB7C3KX0D4S5N2M",
		GeneratedAt:      renderNow,
		CanonicalPageMap: canonical,
		PageModDates:     domain.PageModDates{"about": "2024-01-01T00:00:00.000Z"},
	}
}

func decode(t *testing.T, data []byte) urlSet {
	t.Helper()
	var set urlSet
	require.NoError(t, xml.Unmarshal(data, &set))
	return set
}

func TestRenderHomeAndAbout(t *testing.T) {
	data, count, err := RenderBytes(homeAboutSiteMap(), RenderOptions{Now: renderNow})
	require.NoError(t, err)
	require.Equal(t, 5, count)
	require.True(t, strings.HasPrefix(string(data), xml.Header), "missing xml declaration")

	set := decode(t, data)
	require.Equal(t, sitemapNamespace, set.XMLName.Space)
	require.Equal(t, []urlEntry{
		{Loc: "https://hanko.example.com/blog", ChangeFreq: "daily"},
		{Loc: "https://hanko.example.com/blog/"},
		{Loc: "https://hanko.example.com/blog/home", LastMod: "2024-06-01T12:00:00.000Z"},
		{Loc: "https://hanko.example.com/blog/about", LastMod: "2024-01-01T00:00:00.000Z"},
		{Loc: "https://hanko.example.com/blog/%E3%82%AC%E3%82%A4%E3%83%89", LastMod: "2024-06-01T12:00:00.000Z"},
	}, set.URLs)
}

func TestRenderOptionsOverrideSite(t *testing.T) {
	data, _, err := RenderBytes(homeAboutSiteMap(), RenderOptions{
		Host:       "https://cdn.example.com",
		BasePath:   "journal/",
		ChangeFreq: "weekly",
		Now:        renderNow,
	})
	require.NoError(t, err)

	set := decode(t, data)
	require.Equal(t, "https://cdn.example.com/journal", set.URLs[0].Loc)
	require.Equal(t, "weekly", set.URLs[0].ChangeFreq)
	require.Equal(t, "https://cdn.example.com/journal/about", set.URLs[3].Loc)
}

func TestRenderEmptySiteMap(t *testing.T) {
	sm := &domain.SiteMap{Site: domain.Site{Host: "https://hanko.example.com"}}
	data, count, err := RenderBytes(sm, RenderOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, count)
	set := decode(t, data)
	require.Equal(t, "https://hanko.example.com", set.URLs[0].Loc)
	require.Equal(t, "https://hanko.example.com/", set.URLs[1].Loc)
}

func TestRenderRequiresSiteMap(t *testing.T) {
	_, _, err := RenderBytes(nil, RenderOptions{})
	require.Error(t, err)
}

func TestCacheControl(t *testing.T) {
	require.Equal(t, "public, max-age=28800, stale-while-revalidate=28800", CacheControl(8*time.Hour))
	require.Equal(t, "public, max-age=0, stale-while-revalidate=0", CacheControl(-time.Second))
}
