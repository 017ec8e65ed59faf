// Package crawler fetches live wiki pages over HTTP when no XML dump
// is available, grounded on
// original_source/src/holocron/wookieepedia_scraper.py's
// WookieepediaScraper: fixed User-Agent, one rate-limited request at a
// time, and the _encode_wiki_url repair for corrupted article titles
// (spec §4.9).
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"holocron/internal/config"
	"holocron/internal/logging"
	"holocron/internal/model"
	"holocron/internal/ratelimit"
	"holocron/internal/retry"
)

const defaultRetryAfter = 60 * time.Second

// Crawler fetches a single article's raw wikitext at a time, respecting
// the shared rate limiter before every request.
type Crawler struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	baseURL   string
	userAgent string
	retrier   *retry.Retrier
	log       logging.Logger
}

// New builds a Crawler sharing limiter with the rest of the ingest run.
func New(limiter *ratelimit.Limiter, cfg config.CrawlerConfig) *Crawler {
	return &Crawler{
		client:    &http.Client{Timeout: cfg.Timeout()},
		limiter:   limiter,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		retrier:   retry.New(retry.ExponentialBackoff(3)),
		log:       logging.WithComponent("crawler"),
	}
}

// Fetch retrieves title's raw wikitext via the wiki's raw-content
// endpoint and returns it as a RawArticle ready for the markup
// normalizer. Namespace is always 0 (the crawler only ever requests
// main-content article pages); RevisionID is unavailable from this
// endpoint and left blank.
func (c *Crawler) Fetch(ctx context.Context, title string) (model.RawArticle, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return model.RawArticle{}, err
	}

	reqURL := c.baseURL + "/wiki/" + encodeArticleName(title) + "?action=raw"

	var body string
	result := c.retrier.Do(ctx, func(ctx context.Context) error {
		b, err := c.fetchOnce(ctx, reqURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if result.Err != nil {
		return model.RawArticle{}, fmt.Errorf("crawler: fetch %q: %w", title, result.Err)
	}

	return model.RawArticle{
		Title:      title,
		Namespace:  0,
		RevisionID: "",
		Markup:     body,
		Categories: extractCategories(body),
	}, nil
}

func (c *Crawler) fetchOnce(ctx context.Context, reqURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", &retry.PermanentError{Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfterDuration(resp.Header.Get("Retry-After"))
		c.log.Error("rate limited by wiki server", "retry_after", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "", fmt.Errorf("crawler: rate limited, retry scheduled")
	}

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("crawler: server error %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &retry.PermanentError{Err: fmt.Errorf("crawler: unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func retryAfterDuration(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

var (
	unicodeReplacementPattern    = regexp.MustCompile("�([a-zA-Z0-9_])")
	hexEncodedReplacementPattern = regexp.MustCompile(`%EF%BF%BD([a-zA-Z0-9_])`)
)

// encodeArticleName rebuilds the /wiki/ path segment for title,
// repairing the two corruption patterns the original scraper guards
// against before re-escaping: a literal Unicode replacement character
// (U+FFFD) or its hex-encoded form standing in for a mangled "%" in an
// article name's percent-escape sequence.
func encodeArticleName(title string) string {
	name := strings.ReplaceAll(title, " ", "_")

	if strings.ContainsRune(name, '�') {
		name = unicodeReplacementPattern.ReplaceAllString(name, "%$1")
	}
	if strings.Contains(name, "EF%BF%BD") {
		name = hexEncodedReplacementPattern.ReplaceAllString(name, "%$1")
	}

	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	name = strings.ReplaceAll(name, "%", "%25")

	return url.PathEscape(name)
}

// extractCategories scans raw wikitext for [[Category:Name]] links,
// the same source the XML dump path reads categories from, so both
// fetch paths hand the content filter an identically shaped RawArticle.
func extractCategories(text string) []string {
	const prefix = "[[category:"
	lower := strings.ToLower(text)

	var categories []string
	seen := make(map[string]bool)

	start := 0
	for {
		idx := strings.Index(lower[start:], prefix)
		if idx < 0 {
			break
		}
		idx += start
		end := strings.Index(text[idx:], "]]")
		if end < 0 {
			break
		}
		inner := text[idx+len(prefix) : idx+end]
		if pipe := strings.Index(inner, "|"); pipe >= 0 {
			inner = inner[:pipe]
		}
		name := "Category:" + strings.TrimSpace(inner)
		if !seen[name] {
			seen[name] = true
			categories = append(categories, name)
		}
		start = idx + end + 2
	}
	return categories
}
