package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Wire News</title>
    <item>
      <title> Rates held steady </title>
      <link>https://example.com/rates</link>
      <guid>rates-2026-08</guid>
      <description>&lt;p&gt;The central bank held rates &amp;amp; signalled caution.&lt;/p&gt;</description>
      <pubDate>Mon, 24 Aug 2026 10:30:00 +0000</pubDate>
    </item>
    <item>
      <title>Storm makes landfall</title>
      <link>https://example.com/storm</link>
      <description>A storm made landfall overnight.</description>
      <pubDate>not a date</pubDate>
    </item>
  </channel>
</rss>`

func TestParseRSS(t *testing.T) {
	assert := assert.New(t)

	articles, err := ParseRSS([]byte(sampleRSS))
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal("rates-2026-08", first.GUID)
	assert.Equal("Rates held steady", first.Title)
	assert.Equal("https://example.com/rates", first.Link)
	assert.Equal("The central bank held rates & signalled caution.", first.Content)
	assert.Equal(time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC), first.PublishedAt.UTC())

	// Missing guid falls back to the link; bad dates are zero
	second := articles[1]
	assert.Equal("https://example.com/storm", second.GUID)
	assert.True(second.PublishedAt.IsZero())
}

func TestStripTagsDecodesEntitiesOnce(t *testing.T) {
	assert := assert.New(t)

	// A double-escaped entity decodes one level, never two
	assert.Equal("a &lt; b", stripTags("a &amp;lt; b"))
	assert.Equal(`he said "hi" & left`, stripTags("he said &quot;hi&quot; &amp; left"))
	assert.Equal("plain text", stripTags("<p>plain <b>text</b></p>"))
}

func TestParseRSSInvalidXML(t *testing.T) {
	_, err := ParseRSS([]byte("<rss><channel>"))
	assert.Error(t, err)
}

func TestLoadFeeds(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "feeds.yml")
	content := "feeds:\n  - name: wire\n    url: https://example.com/rss\n  - name: local\n    url: https://example.org/feed\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	feeds, err := LoadFeeds(path)
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal("wire", feeds[0].Name)
	assert.Equal("https://example.com/rss", feeds[0].URL)
}

func TestLoadFeedsMissingFile(t *testing.T) {
	_, err := LoadFeeds(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
