package feed

import (
	"errors"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>https://blog.example.com</link>
    <item>
      <title>Third post</title>
      <link>https://blog.example.com/3</link>
      <guid>post-3</guid>
      <description>the newest one</description>
      <pubDate>Wed, 30 Aug 2023 12:29:25 GMT</pubDate>
    </item>
    <item>
      <title>First post</title>
      <link>https://blog.example.com/1</link>
      <guid>post-1</guid>
      <pubDate>Wed, 30 Aug 2023 10:02:26 GMT</pubDate>
    </item>
    <item>
      <title>Second post</title>
      <link>https://blog.example.com/2</link>
      <pubDate>Wed, 30 Aug 2023 10:12:16 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestParseSortsAndWatermarks(t *testing.T) {
	result, err := Parse("https://blog.example.com/rss", []byte(sampleRSS), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if result.Title != "Example Blog" {
		t.Errorf("title = %q, want %q", result.Title, "Example Blog")
	}
	if len(result.Items) != 3 {
		t.Fatalf("parsed %d items, want 3", len(result.Items))
	}

	// Ascending by publication time regardless of document order.
	want := []string{"First post", "Second post", "Third post"}
	for i, title := range want {
		if result.Items[i].Title != title {
			t.Errorf("items[%d] = %q, want %q", i, result.Items[i].Title, title)
		}
	}

	newest := time.Date(2023, 8, 30, 12, 29, 25, 0, time.UTC)
	if result.PublishedAt == nil || !result.PublishedAt.Equal(newest) {
		t.Errorf("watermark = %v, want %v", result.PublishedAt, newest)
	}
}

func TestParseGUIDDefaultsToLink(t *testing.T) {
	result, err := Parse("https://blog.example.com/rss", []byte(sampleRSS), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// "Second post" carries no guid element.
	if got := result.Items[1].GUID; got != "https://blog.example.com/2" {
		t.Errorf("guid = %q, want the item link", got)
	}
	if got := result.Items[0].GUID; got != "post-1" {
		t.Errorf("guid = %q, want %q", got, "post-1")
	}
}

func TestParseFiltersIgnoreBefore(t *testing.T) {
	cutoff := time.Date(2023, 8, 30, 10, 12, 16, 0, time.UTC)

	result, err := Parse("https://blog.example.com/rss", []byte(sampleRSS), &cutoff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Items strictly before the cutoff are dropped; an item published
	// exactly at the cutoff survives.
	if len(result.Items) != 2 {
		t.Fatalf("parsed %d items, want 2", len(result.Items))
	}
	if result.Items[0].Title != "Second post" || result.Items[1].Title != "Third post" {
		t.Errorf("unexpected survivors: %q, %q", result.Items[0].Title, result.Items[1].Title)
	}
}

func TestParseAllItemsFiltered(t *testing.T) {
	cutoff := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := Parse("https://blog.example.com/rss", []byte(sampleRSS), &cutoff)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("parsed %d items, want 0", len(result.Items))
	}
	if result.PublishedAt != nil {
		t.Errorf("watermark = %v, want nil when no item survives", result.PublishedAt)
	}
}

func TestParseDropsDefectiveItems(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Defects</title>
    <item>
      <title>No date</title>
      <link>https://blog.example.com/a</link>
    </item>
    <item>
      <title>   </title>
      <link>https://blog.example.com/b</link>
      <pubDate>Wed, 30 Aug 2023 10:02:26 GMT</pubDate>
    </item>
    <item>
      <title>No link</title>
      <pubDate>Wed, 30 Aug 2023 10:02:26 GMT</pubDate>
    </item>
    <item>
      <title>Good</title>
      <link>https://blog.example.com/c</link>
      <pubDate>Wed, 30 Aug 2023 10:02:26 GMT</pubDate>
    </item>
  </channel>
</rss>`

	result, err := Parse("https://blog.example.com/rss", []byte(doc), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Title != "Good" {
		t.Fatalf("expected only the well-formed item, got %d items", len(result.Items))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid xml", "not a feed at all"},
		{"blank channel title", `<?xml version="1.0"?>
<rss version="2.0"><channel><title>   </title></channel></rss>`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("https://blog.example.com/rss", []byte(tc.doc), nil)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if parseErr.URL != "https://blog.example.com/rss" {
				t.Errorf("error URL = %q", parseErr.URL)
			}
		})
	}
}
