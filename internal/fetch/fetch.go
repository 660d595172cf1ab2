// Package fetch retrieves reference summaries and news headlines for entities
package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"agreegraph/internal/logger"
	"agreegraph/pkg"
)

const (
	DefaultReferenceURL = "https://en.wikipedia.org/api/rest_v1/page/summary/"
	DefaultNewsURL      = "https://news.google.com/rss/search"

	referenceSource = "Wikipedia"
	newsSource      = "Google News"
)

// Fetcher is the external lookup capability used by the fetch stage
type Fetcher interface {
	// FetchReference returns nil without error when no article exists
	FetchReference(ctx context.Context, entity string) (*pkg.ReferenceSummary, error)
	FetchNews(ctx context.Context, query string, max int) ([]pkg.NewsItem, error)
}

// Config configures the HTTP client
type Config struct {
	ReferenceURL     string `envconfig:"REFERENCE_URL" yaml:"reference_url"`
	NewsURL          string `envconfig:"NEWS_URL" yaml:"news_url"`
	UserAgent        string `envconfig:"FETCH_USER_AGENT" default:"AgreeGraph/1.0" yaml:"user_agent"`
	SummaryMaxLength int    `envconfig:"REFERENCE_SUMMARY_MAX_LENGTH" default:"500" yaml:"summary_max_length"`
}

// Client fetches from the Wikipedia REST API and Google News RSS
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a client; httpClient may be nil
func NewClient(config Config, httpClient *http.Client) *Client {
	if config.ReferenceURL == "" {
		config.ReferenceURL = DefaultReferenceURL
	}
	if config.NewsURL == "" {
		config.NewsURL = DefaultNewsURL
	}
	if config.SummaryMaxLength <= 0 {
		config.SummaryMaxLength = 500
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{config: config, http: httpClient}
}

type summaryResponse struct {
	Type        string `json:"type"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// FetchReference looks up the encyclopedia summary of entity
func (c *Client) FetchReference(ctx context.Context, entity string) (*pkg.ReferenceSummary, error) {
	title := strings.ReplaceAll(strings.TrimSpace(entity), " ", "_")
	if title == "" {
		return nil, nil
	}

	body, status, err := c.get(ctx, c.config.ReferenceURL+url.PathEscape(title), "application/json")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("reference lookup for %q returned status %d", entity, status)
	}

	var resp summaryResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode reference summary: %w", err)
	}
	if strings.TrimSpace(resp.Extract) == "" {
		return nil, nil
	}

	return &pkg.ReferenceSummary{
		Text:   pkg.Truncate(resp.Extract, c.config.SummaryMaxLength),
		URL:    resp.ContentURLs.Desktop.Page,
		Source: referenceSource,
	}, nil
}

type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// FetchNews returns up to max recent headlines for query
func (c *Client) FetchNews(ctx context.Context, query string, max int) ([]pkg.NewsItem, error) {
	if max <= 0 || strings.TrimSpace(query) == "" {
		return []pkg.NewsItem{}, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", "en-US")
	params.Set("gl", "US")
	params.Set("ceid", "US:en")

	body, status, err := c.get(ctx, c.config.NewsURL+"?"+params.Encode(), "application/rss+xml")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("news lookup for %q returned status %d", query, status)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode news feed: %w", err)
	}

	items := make([]pkg.NewsItem, 0, max)
	for _, item := range feed.Channel.Items {
		if len(items) == max {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "No title"
		}
		items = append(items, pkg.NewsItem{
			Title:     title,
			Link:      strings.TrimSpace(item.Link),
			Published: strings.TrimSpace(item.PubDate),
			Source:    newsSource,
		})
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, target, accept string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debug().
		Str("host", req.URL.Host).
		Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Fetch request completed")

	return body, resp.StatusCode, nil
}
