// Package scrape extracts recipe text from web pages.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sous-voice-service/internal/observability/logging"
	"sous-voice-service/internal/observability/metrics"
	"sous-voice-service/internal/schema"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMinContentLength = 50
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	maxBodyBytes = 10 << 20
)

var (
	ErrInvalidURL  = errors.New("scrape: invalid URL provided")
	ErrFetchFailed = errors.New("scrape: failed to fetch HTML content from URL")
	ErrNoContent   = errors.New("scrape: no meaningful recipe content found on the page")
)

// Lines containing any of these are page chrome, not recipe content.
var skipPatterns = []string{
	"cookie", "privacy", "terms", "advertisement", "advert",
	"subscribe", "newsletter", "share", "comment", "footer",
	"navigation", "menu", "header", "sidebar", "related",
	"©", "all rights reserved", "powered by",
}

// Config configures a Scraper. Zero values take defaults.
type Config struct {
	Timeout          time.Duration
	UserAgent        string
	MinContentLength int
}

// Scraper fetches recipe pages and reduces them to plain text.
type Scraper struct {
	client    *http.Client
	userAgent string
	minLength int
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func New(cfg Config) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	return &Scraper{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		minLength: cfg.MinContentLength,
		logger:    logging.WithComponent("scraper"),
		metrics:   metrics.DefaultMetrics,
	}
}

// FromURL returns the cleaned text of the page at rawURL.
func (s *Scraper) FromURL(ctx context.Context, rawURL string) (string, error) {
	text, err := s.PageText(ctx, rawURL)
	if err != nil {
		s.metrics.RecordScrape(err)
		return "", err
	}

	recipe := Clean(text)
	s.metrics.RecordScrape(nil)
	s.logger.Info().
		Str("url", rawURL).
		Int("chars", len(recipe)).
		Msg("Extracted recipe")
	return recipe, nil
}

// PageText fetches rawURL and returns its visible text, one block per line,
// without cleaning.
func (s *Scraper) PageText(ctx context.Context, rawURL string) (string, error) {
	if err := schema.ValidateURL(rawURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	body, err := s.fetch(ctx, rawURL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", rawURL).Msg("Fetch failed")
		return "", err
	}

	text, err := HTMLToText(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len([]rune(strings.TrimSpace(text))) < s.minLength {
		return "", ErrNoContent
	}
	return text, nil
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return string(b), nil
}

// HTMLToText returns the trimmed text nodes of a document, one per line.
// Script, style and noscript content is skipped.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(lines, "\n"), nil
}

// Clean drops empty lines, boilerplate lines and short all-caps labels.
func Clean(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isBoilerplate(line) {
			continue
		}
		if len([]rune(line)) < 10 && isUpper(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range skipPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// isUpper reports whether s has at least one cased letter and no lowercase ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
