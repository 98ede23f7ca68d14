// Package feed downloads and parses RSS/Atom documents for the refresh
// pipeline. Fetching and parsing are deliberately split: the fetcher only
// ever hands fully downloaded, size-checked bytes to the parser, so no
// parser code path can be tricked into following a URL on its own.
package feed

import (
	"bytes"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// ContentItem is one normalized feed entry.
type ContentItem struct {
	Title       string
	Summary     *string
	URL         string
	GUID        string
	PublishedAt time.Time
}

// ContentResult is the normalized outcome of parsing one feed document.
// PublishedAt is the publication time of the newest surviving item, or nil
// when no item survived filtering; the worker persists it as the feed's
// watermark.
type ContentResult struct {
	Title       string
	PublishedAt *time.Time
	Items       []ContentItem
}

// ParseError reports malformed feed contents or missing required channel
// fields.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse converts RSS/Atom bytes into a ContentResult. Items published
// before ignoreBefore are dropped; surviving items are sorted ascending by
// publication time so the last item carries the new watermark.
//
// Per-item defects (missing date, blank title, missing link) drop the item
// with a log line instead of failing the whole feed.
func Parse(url string, data []byte, ignoreBefore *time.Time) (*ContentResult, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return nil, &ParseError{URL: url, Err: fmt.Errorf("feed has no channel title")}
	}

	items := make([]ContentItem, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		item, ok := parseItem(url, raw, ignoreBefore)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.Before(items[j].PublishedAt)
	})

	result := &ContentResult{Title: title, Items: items}
	if len(items) > 0 {
		last := items[len(items)-1].PublishedAt
		result.PublishedAt = &last
	}
	return result, nil
}

func parseItem(url string, raw *gofeed.Item, ignoreBefore *time.Time) (ContentItem, bool) {
	if raw.PublishedParsed == nil {
		log.Printf("feed: dropping item without publication date (feed=%s link=%s)", url, raw.Link)
		return ContentItem{}, false
	}
	publishedAt := *raw.PublishedParsed

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		log.Printf("feed: dropping item without title (feed=%s link=%s)", url, raw.Link)
		return ContentItem{}, false
	}
	if raw.Link == "" {
		log.Printf("feed: dropping item without link (feed=%s title=%q)", url, raw.Title)
		return ContentItem{}, false
	}

	if ignoreBefore != nil && publishedAt.Before(*ignoreBefore) {
		return ContentItem{}, false
	}

	guid := raw.GUID
	if guid == "" {
		guid = raw.Link
	}

	var summary *string
	if raw.Description != "" {
		desc := raw.Description
		summary = &desc
	}

	return ContentItem{
		Title:       title,
		Summary:     summary,
		URL:         raw.Link,
		GUID:        guid,
		PublishedAt: publishedAt,
	}, true
}
