package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"finitefield.org/hanko-sitemap/internal/domain"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	maxPageBodyBytes   = 1 << 20
)

// HTTPStore reads pages from a JSON content API at GET {base}/pages/{id}.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// HTTPStoreOption customises an HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithHTTPClient replaces the default client, which uses a 5s timeout.
func WithHTTPClient(client *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRateLimit caps outgoing requests. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) HTTPStoreOption {
	return func(s *HTTPStore) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewHTTPStore validates baseURL and returns a store.
func NewHTTPStore(baseURL string, opts ...HTTPStoreOption) (*HTTPStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("contentstore: invalid base url %q", baseURL)
	}
	s := &HTTPStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// GetPage implements Store.
func (s *HTTPStore) GetPage(ctx context.Context, pageID domain.RawPageID) (*domain.PageRecord, error) {
	if strings.TrimSpace(string(pageID)) == "" {
		return nil, fmt.Errorf("%w: empty page id", ErrPageNotFound)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint, err := url.JoinPath(s.baseURL, "pages", url.PathEscape(string(pageID)))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contentstore: get page %s: %w", pageID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	case resp.StatusCode >= http.StatusBadRequest:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("contentstore: get page %s: remote status %d", pageID, resp.StatusCode)
	}

	var doc pageDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBodyBytes)).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("contentstore: get page %s: empty body", pageID)
		}
		return nil, fmt.Errorf("contentstore: decode page %s: %w", pageID, err)
	}
	return doc.record(pageID), nil
}
