// Package feed renders a site map as a sitemaps.org XML document and publishes it.
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"finitefield.org/hanko-sitemap/internal/domain"
	"finitefield.org/hanko-sitemap/internal/sitemap"
)

const (
	// ContentType is served and uploaded with every rendered feed.
	ContentType = "text/xml"

	sitemapNamespace  = "http://www.sitemaps.org/schemas/sitemap/0.9"
	defaultChangeFreq = "daily"
)

// RenderOptions overrides the site metadata carried by the site map.
type RenderOptions struct {
	// Host is the absolute origin, e.g. https://example.com. Defaults to the site host.
	Host string
	// BasePath prefixes every page path. Defaults to the site base path.
	BasePath string
	// ChangeFreq is set on the listing entry. Defaults to daily.
	ChangeFreq string
	// Now stamps pages without a recorded mod date. Defaults to the render time.
	Now time.Time
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
}

// Render writes the urlset for sm to w and returns the number of <url> entries. The listing
// page comes first, then its trailing-slash form, then every canonical page in build order.
func Render(w io.Writer, sm *domain.SiteMap, opts RenderOptions) (int, error) {
	if sm == nil {
		return 0, fmt.Errorf("feed: site map is required")
	}
	opts = withDefaults(sm.Site, opts)
	base := opts.Host + opts.BasePath
	fallback := opts.Now.UTC().Format(sitemap.ModDateLayout)

	set := urlSet{Xmlns: sitemapNamespace}
	set.URLs = append(set.URLs,
		urlEntry{Loc: base, ChangeFreq: opts.ChangeFreq},
		urlEntry{Loc: base + "/"},
	)
	sm.CanonicalPageMap.Range(func(id domain.CanonicalPageID, _ domain.RawPageID) bool {
		lastMod, ok := sm.ModDate(id)
		if !ok {
			lastMod = fallback
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:     base + "/" + url.PathEscape(string(id)),
			LastMod: lastMod,
		})
		return true
	})

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return 0, err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return 0, fmt.Errorf("feed: encode urlset: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return 0, err
	}
	return len(set.URLs), nil
}

// RenderBytes renders into memory so callers can fail before writing any response.
func RenderBytes(sm *domain.SiteMap, opts RenderOptions) ([]byte, int, error) {
	var buf bytes.Buffer
	n, err := Render(&buf, sm, opts)
	if err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), n, nil
}

// CacheControl returns the public caching directive for a feed with the given max age.
func CacheControl(maxAge time.Duration) string {
	seconds := int64(maxAge / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", seconds, seconds)
}

func withDefaults(site domain.Site, opts RenderOptions) RenderOptions {
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = site.Host
	}
	opts.Host = strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if opts.BasePath == "" {
		opts.BasePath = site.BasePath
	}
	if opts.BasePath = strings.Trim(strings.TrimSpace(opts.BasePath), "/"); opts.BasePath != "" {
		opts.BasePath = "/" + opts.BasePath
	}
	if strings.TrimSpace(opts.ChangeFreq) == "" {
		opts.ChangeFreq = defaultChangeFreq
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return opts
}
