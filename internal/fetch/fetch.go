// Package fetch downloads evidence source pages and extracts readable
// excerpts for items that arrived without raw text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/model"
)

// MaxExcerpt caps the stored excerpt length in characters.
const MaxExcerpt = 2000

const maxBody = 5 << 20

// Result holds the results of an excerpt fetch pass.
type Result struct {
	Fetched           int
	AlreadyHadContent int
	Failed            int
}

// ExcerptFetcher fetches page text via HTTP + readability extraction.
// Domains that returned an HTTP error are not retried for the lifetime of
// the fetcher. Safe for concurrent use.
type ExcerptFetcher struct {
	client *http.Client

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewExcerptFetcher creates a new excerpt fetcher.
func NewExcerptFetcher(timeout time.Duration) *ExcerptFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ExcerptFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		failedDomains: make(map[string]struct{}),
	}
}

// Enrich fills RawText for evidence items that lack it. Failures are soft.
func (f *ExcerptFetcher) Enrich(ctx context.Context, items []model.Evidence) *Result {
	result := &Result{}
	for i := range items {
		e := &items[i]
		if strings.TrimSpace(e.RawText) != "" {
			result.AlreadyHadContent++
			continue
		}
		u, err := url.Parse(e.SourceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		domain := strings.ToLower(u.Host)
		if f.domainFailed(domain) {
			result.Failed++
			continue
		}

		text, err := f.Excerpt(ctx, e.SourceURL)
		if err != nil {
			f.markFailed(domain)
			result.Failed++
			zap.S().Debugf("HTTP error for %s, skipping remaining from %s: %v", e.SourceURL, domain, err)
			continue
		}
		if text == "" {
			result.Failed++
			continue
		}
		e.RawText = text
		result.Fetched++
	}
	return result
}

// Excerpt downloads pageURL and returns its readable text truncated to
// MaxExcerpt characters. Connection failures and pages without extractable
// text yield "" and no error; HTTP error statuses are returned as errors.
func (f *ExcerptFetcher) Excerpt(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "infratracker/1.0 (evidence excerpts)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < 100 {
		return "", nil
	}
	if r := []rune(text); len(r) > MaxExcerpt {
		text = string(r[:MaxExcerpt])
	}
	return text, nil
}

func (f *ExcerptFetcher) domainFailed(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.failedDomains[domain]
	return ok
}

func (f *ExcerptFetcher) markFailed(domain string) {
	if domain == "" {
		return
	}
	f.mu.Lock()
	f.failedDomains[domain] = struct{}{}
	f.mu.Unlock()
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d %s", e.code, http.StatusText(e.code))
}
