package feed

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/errs"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>The Go Hour</title>
    <description><![CDATA[<p>A show about <b>Go</b>.<script>evil()</script></p>]]></description>
    <itunes:author>Jane Dev</itunes:author>
    <language>en-us</language>
    <link>https://example.com/show</link>
    <itunes:category text="Technology"/>
    <image><url>https://example.com/cover.jpg</url></image>
    <item>
      <title>Episode One</title>
      <description>First episode</description>
      <guid>ep-1</guid>
      <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
      <enclosure url="https://example.com/ep1.mp3" type="audio/mpeg"/>
      <itunes:duration>32:10</itunes:duration>
    </item>
    <item>
      <title>Episode Two</title>
      <description>Second episode</description>
      <guid>ep-2</guid>
      <pubDate>Tue, 03 Jan 2006 15:04:05 +0000</pubDate>
      <enclosure url="https://example.com/ep2.mp3" type="audio/mpeg"/>
      <itunes:duration>1800</itunes:duration>
      <unexpected:widget>hi</unexpected:widget>
    </item>
  </channel>
</rss>`

func TestParseRSSHappyPath(t *testing.T) {
	p := NewParser(Options{StrictMode: true, CleanHTML: true, ValidateURLs: true})
	res, err := p.Parse([]byte(rssFixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeRSS {
		t.Fatalf("expected ModeRSS, got %v", res.Mode)
	}
	if res.Feed.Title != "The Go Hour" {
		t.Fatalf("unexpected title: %q", res.Feed.Title)
	}
	if strings.Contains(res.Feed.Description, "<") || strings.Contains(res.Feed.Description, "evil") {
		t.Fatalf("expected sanitized description, got %q", res.Feed.Description)
	}
	if res.Feed.Author != "Jane Dev" {
		t.Fatalf("unexpected author: %q", res.Feed.Author)
	}
	if len(res.Feed.Categories) != 1 || res.Feed.Categories[0] != "Technology" {
		t.Fatalf("unexpected categories: %v", res.Feed.Categories)
	}
	if res.Feed.Image != "https://example.com/cover.jpg" {
		t.Fatalf("unexpected image: %q", res.Feed.Image)
	}
	if len(res.Feed.Episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(res.Feed.Episodes))
	}
	ep1 := res.Feed.Episodes[0]
	if ep1.AudioURL != "https://example.com/ep1.mp3" {
		t.Fatalf("unexpected audio url: %q", ep1.AudioURL)
	}
	if ep1.Duration == nil || *ep1.Duration != 32*time.Minute+10*time.Second {
		t.Fatalf("unexpected duration: %v", ep1.Duration)
	}
	ep2 := res.Feed.Episodes[1]
	if ep2.Duration == nil || *ep2.Duration != 1800*time.Second {
		t.Fatalf("unexpected duration: %v", ep2.Duration)
	}
	if res.UnknownTags["unexpected:widget"] != 1 {
		t.Fatalf("expected unknown tag to be tracked, got %v", res.UnknownTags)
	}
}

func TestParseRSSRoundTripIsStable(t *testing.T) {
	p := NewParser(Options{StrictMode: true, CleanHTML: true, ValidateURLs: true})
	first, err := p.Parse([]byte(rssFixture))
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	second, err := p.Parse([]byte(rssFixture))
	if err != nil {
		t.Fatalf("second parse failed: %v", err)
	}
	if len(first.Feed.Episodes) != len(second.Feed.Episodes) {
		t.Fatalf("episode counts differ across identical parses")
	}
	for i := range first.Feed.Episodes {
		if !episodesEqual(first.Feed.Episodes[i], second.Feed.Episodes[i]) {
			t.Fatalf("episode %d differs between identical parses", i)
		}
	}
}

// episodesEqual compares two Episodes by value. Episode.Duration is a
// *time.Duration, so a plain == would compare pointer identity rather
// than the durations they point to.
func episodesEqual(a, b Episode) bool {
	if (a.Duration == nil) != (b.Duration == nil) {
		return false
	}
	if a.Duration != nil && *a.Duration != *b.Duration {
		return false
	}
	a.Duration, b.Duration = nil, nil
	return a == b
}

func TestParseRSSMissingFieldStrictFails(t *testing.T) {
	const fixture = `<rss version="2.0"><channel><title>No Enclosure Show</title>
<item><title>Bad</title><guid>g1</guid><pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate></item>
</channel></rss>`

	p := NewParser(Options{StrictMode: true})
	_, err := p.Parse([]byte(fixture))
	if err == nil {
		t.Fatal("expected error in strict mode for missing enclosure")
	}
	var perr *errs.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	if perr.Kind != errs.MissingField {
		t.Fatalf("expected MissingField, got %v", perr.Kind)
	}
	if perr.IsRetryable() {
		t.Fatal("parse errors must never be retryable")
	}
}

func TestParseRSSMissingFieldLenientDropsEpisode(t *testing.T) {
	const fixture = `<rss version="2.0"><channel><title>No Enclosure Show</title>
<item><title>Bad</title><guid>g1</guid><pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate></item>
<item><title>Good</title><guid>g2</guid><pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
<enclosure url="https://example.com/g2.mp3"/></item>
</channel></rss>`

	p := NewParser(Options{StrictMode: false})
	res, err := p.Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("unexpected error in lenient mode: %v", err)
	}
	if len(res.Feed.Episodes) != 1 {
		t.Fatalf("expected the incomplete episode to be dropped, got %d episodes", len(res.Feed.Episodes))
	}
	if res.Feed.Episodes[0].GUID != "g2" {
		t.Fatalf("unexpected surviving episode: %+v", res.Feed.Episodes[0])
	}
}

func TestParseRSSDuplicateGUIDStrictFails(t *testing.T) {
	const fixture = `<rss version="2.0"><channel><title>Dup Show</title>
<item><title>A</title><guid>same</guid><pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate><enclosure url="https://example.com/a.mp3"/></item>
<item><title>B</title><guid>same</guid><pubDate>Tue, 03 Jan 2006 15:04:05 +0000</pubDate><enclosure url="https://example.com/b.mp3"/></item>
</channel></rss>`

	p := NewParser(Options{StrictMode: true})
	_, err := p.Parse([]byte(fixture))
	if err == nil {
		t.Fatal("expected duplicate guid to fail in strict mode")
	}
}

func TestParseAtomFeed(t *testing.T) {
	const fixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Cast</title>
  <subtitle>Atom flavored podcast</subtitle>
  <author><name>Ada</name></author>
  <link rel="alternate" href="https://example.com/atom"/>
  <entry>
    <title>Atom Episode</title>
    <id>atom-1</id>
    <published>2023-05-01T12:00:00Z</published>
    <summary>An atom episode</summary>
    <link rel="enclosure" href="https://example.com/atom1.mp3"/>
  </entry>
</feed>`

	p := NewParser(Options{StrictMode: true, ValidateURLs: true})
	res, err := p.Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeAtom {
		t.Fatalf("expected ModeAtom, got %v", res.Mode)
	}
	if res.Feed.Title != "Atom Cast" {
		t.Fatalf("unexpected title: %q", res.Feed.Title)
	}
	if len(res.Feed.Episodes) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Feed.Episodes))
	}
	ep := res.Feed.Episodes[0]
	if ep.AudioURL != "https://example.com/atom1.mp3" {
		t.Fatalf("unexpected enclosure: %q", ep.AudioURL)
	}
	if ep.PublishedAt.IsZero() {
		t.Fatal("expected published date to be parsed")
	}
}

func TestParseInvalidXMLReturnsParseError(t *testing.T) {
	p := NewParser(Options{})
	_, err := p.Parse([]byte(`<rss><channel><title>Unterminated`))
	if err == nil {
		t.Fatal("expected an error for unterminated XML")
	}
	var perr *errs.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %T", err)
	}
}

func TestParseUnrecognizedRootFails(t *testing.T) {
	p := NewParser(Options{})
	_, err := p.Parse([]byte(`<somethingelse><a>1</a></somethingelse>`))
	if err == nil {
		t.Fatal("expected an error for unrecognized root element")
	}
}
