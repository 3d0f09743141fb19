package topic

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const googleTrendsBaseURL = "https://trends.google.com"

var regionCodes = map[string]string{
	"india":          "IN",
	"united states":  "US",
	"united kingdom": "GB",
	"uk":             "GB",
	"japan":          "JP",
	"germany":        "DE",
	"france":         "FR",
	"brazil":         "BR",
	"indonesia":      "ID",
	"pakistan":       "PK",
	"bangladesh":     "BD",
	"nepal":          "NP",
	"canada":         "CA",
	"australia":      "AU",
}

// GeoCode maps a region name or ISO code to the two-letter geo parameter.
func GeoCode(region string) string {
	r := strings.ToLower(strings.TrimSpace(region))
	if code, ok := regionCodes[r]; ok {
		return code
	}
	if len(r) == 2 {
		return strings.ToUpper(r)
	}
	return "IN"
}

// GoogleTrends reads the daily trending searches RSS feed.
type GoogleTrends struct {
	client *resty.Client
}

var _ Provider = (*GoogleTrends)(nil)

func NewGoogleTrends(timeout time.Duration) *GoogleTrends {
	return &GoogleTrends{
		client: resty.New().
			SetBaseURL(googleTrendsBaseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)"),
	}
}

// WithBaseURL overrides the feed host.
func (g *GoogleTrends) WithBaseURL(baseURL string) *GoogleTrends {
	g.client.SetBaseURL(baseURL)
	return g
}

type trendsFeed struct {
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Trending returns the title of the first item in the feed.
func (g *GoogleTrends) Trending(ctx context.Context, region string) (string, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("geo", GeoCode(region)).
		Get("/trending/rss")
	if err != nil {
		return "", fmt.Errorf("trends request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("trends returned status %d", resp.StatusCode())
	}

	var feed trendsFeed
	if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
		return "", fmt.Errorf("failed to parse trends feed: %w", err)
	}
	for _, item := range feed.Channel.Items {
		if title := strings.TrimSpace(item.Title); title != "" {
			return title, nil
		}
	}
	return "", fmt.Errorf("trends feed has no items")
}
