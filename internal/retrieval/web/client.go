// Package web scrapes the public government portal's search page as a
// retrieval fallback when the vector index has nothing to offer.
package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/retrieval"
	"github.com/civic-agent/backend/pkg/logger"
)

// Fallback results rank below any vector hit.
const fallbackBaseScore = 0.45

type Client struct {
	portalURL  string
	httpClient *http.Client
}

func NewClient(portalURL string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &Client{
		portalURL: strings.TrimRight(portalURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

// Ready reports whether a portal URL is configured.
func (c *Client) Ready() bool {
	return c.portalURL != ""
}

// Search queries the portal search page and extracts result entries.
func (c *Client) Search(ctx context.Context, query string, k int) ([]retrieval.SourceDocument, error) {
	if !c.Ready() {
		return []retrieval.SourceDocument{}, nil
	}

	searchURL := fmt.Sprintf("%s/search?q=%s", c.portalURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "civic-agent/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search portal: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("portal search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]retrieval.SourceDocument, 0, k)
	doc.Find("div.search-result").Each(func(i int, s *goquery.Selection) {
		if len(results) >= k {
			return
		}

		title := strings.TrimSpace(s.Find("h3").Text())
		link, _ := s.Find("a").Attr("href")
		snippet := strings.TrimSpace(s.Find("p.summary").Text())
		if snippet == "" {
			snippet = strings.TrimSpace(s.Find("p").First().Text())
		}

		if title == "" || link == "" {
			return
		}

		results = append(results, retrieval.SourceDocument{
			Title:    title,
			Snippet:  snippet,
			SourceID: link,
			Score:    fallbackBaseScore - float64(len(results))*0.05,
		})
	})

	logger.Info("Portal search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)

	return results, nil
}
