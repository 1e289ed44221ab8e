package docsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// DefaultFetchMaxChars caps the extracted text one fetch_doc call returns.
const DefaultFetchMaxChars = 8000

// maxFetchBody bounds how much raw HTML is read off the wire before
// extraction.
const maxFetchBody = 2 << 20

// Fetcher retrieves one documentation page and extracts its readable text.
type Fetcher struct {
	httpClient *http.Client
	maxChars   int
}

// NewFetcher creates a Fetcher. maxChars <= 0 uses DefaultFetchMaxChars.
func NewFetcher(maxChars int) *Fetcher {
	if maxChars <= 0 {
		maxChars = DefaultFetchMaxChars
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxChars: maxChars,
	}
}

// Document is the extracted page handed to the model.
type Document struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// Fetch retrieves pageURL and returns its readable text, capped at the
// fetcher's character budget.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxFetchBody)
	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", pageURL, err)
	}

	doc := &Document{
		URL:     pageURL,
		Title:   article.Title,
		Content: article.TextContent,
	}
	if len(doc.Content) > f.maxChars {
		cut := f.maxChars
		for cut > 0 && !utf8.RuneStart(doc.Content[cut]) {
			cut--
		}
		doc.Content = doc.Content[:cut]
		doc.Truncated = true
	}
	return doc, nil
}
