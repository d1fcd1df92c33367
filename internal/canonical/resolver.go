// Package canonical derives the public path segment used for a content page.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"finitefield.org/hanko-sitemap/internal/domain"
)

// Options controls canonical id resolution.
type Options struct {
	// IncludeRawIDSuffix appends the compact raw id to the slug, trading readability for uniqueness.
	IncludeRawIDSuffix bool
}

var markupPolicy = bluemonday.StrictPolicy()

// Resolve returns the canonical id for a page. It never fails: pages without a usable
// slug or title resolve to their compact raw id.
func Resolve(rawID domain.RawPageID, record *domain.PageRecord, opts Options) domain.CanonicalPageID {
	compact := CompactID(rawID)

	var slug string
	if record != nil {
		slug = Slugify(record.Slug)
		if slug == "" {
			slug = Slugify(record.Title)
		}
	}
	if slug == "" {
		return domain.CanonicalPageID(compact)
	}
	if opts.IncludeRawIDSuffix {
		return domain.CanonicalPageID(slug + "-" + compact)
	}
	return domain.CanonicalPageID(slug)
}

// CompactID encodes a raw id as a short URL-safe token. UUIDs lose their hyphens;
// other ids are lowercased and stripped to [a-z0-9].
func CompactID(rawID domain.RawPageID) string {
	trimmed := strings.TrimSpace(string(rawID))
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return strings.ReplaceAll(parsed.String(), "-", "")
	}
	var b strings.Builder
	for _, r := range strings.ToLower(trimmed) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	sum := sha256.Sum256([]byte(rawID))
	return hex.EncodeToString(sum[:8])
}

// Slugify lowercases value and reduces it to the characters allowed in a canonical id.
func Slugify(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = html.UnescapeString(markupPolicy.Sanitize(value))

	folded, _, err := transform.String(foldTransformer(), value)
	if err == nil {
		value = folded
	}
	value = cases.Lower(language.Und).String(value)

	var b strings.Builder
	b.Grow(len(value))
	lastDash := true
	for _, r := range value {
		switch {
		case isSeparator(r):
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		case isAllowed(r):
			b.WriteRune(r)
			lastDash = false
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// foldTransformer decomposes compatibility forms and drops Latin combining marks.
// Kana voicing marks sit outside U+0300..U+036F and recompose under NFC.
func foldTransformer() transform.Transformer {
	latinMarks := runes.Predicate(func(r rune) bool { return r >= 0x0300 && r <= 0x036f })
	return transform.Chain(norm.NFKD, runes.Remove(latinMarks), norm.NFC)
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '-', '_', '/', '.', ':', '|', '・', '–', '—':
		return true
	}
	return false
}

func isAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == 'ー':
		return true
	case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
		return true
	}
	return false
}
