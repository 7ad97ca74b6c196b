package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed identifies one RSS source to ingest
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LoadFeeds reads the feed list from a YAML file
func LoadFeeds(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	var cfg struct {
		Feeds []Feed `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}
	return cfg.Feeds, nil
}

// Article is one item parsed from an RSS feed
type Article struct {
	GUID        string
	Title       string
	Link        string
	Content     string
	PublishedAt time.Time
}

// rss mirrors the RSS 2.0 document structure we care about
type rss struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Fetcher downloads and parses RSS feeds
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given request timeout
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the feed and returns its articles
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	return ParseRSS(body)
}

// ParseRSS parses an RSS 2.0 document into articles
func ParseRSS(data []byte) ([]Article, error) {
	var doc rss
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rss: %w", err)
	}

	articles := make([]Article, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		articles = append(articles, Article{
			GUID:        guid,
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			Content:     stripTags(item.Description),
			PublishedAt: parsePubDate(item.PubDate),
		})
	}
	return articles, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripTags removes HTML markup from feed descriptions
func stripTags(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// parsePubDate tries the date layouts commonly seen in RSS feeds
func parsePubDate(s string) time.Time {
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC3339, "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}
