package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/podcastcrawler/internal/feed"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s := NewSQLiteStore(path)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleFeed() feed.PodcastFeed {
	return feed.PodcastFeed{
		Title: "Example Show",
		Link:  "https://example.com",
		Episodes: []feed.Episode{
			{GUID: "ep-1", Title: "First", PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), AudioURL: "https://example.com/1.mp3"},
			{GUID: "ep-2", Title: "Second", PublishedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), AudioURL: "https://example.com/2.mp3"},
		},
	}
}

func TestSaveCreatesPodcastAndEpisodes(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(context.Background(), "https://example.com/feed.xml", sampleFeed()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	db, err := s.open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	var podcastCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM podcasts").Scan(&podcastCount); err != nil {
		t.Fatalf("count podcasts: %v", err)
	}
	if podcastCount != 1 {
		t.Fatalf("expected 1 podcast row, got %d", podcastCount)
	}

	var episodeCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM episodes").Scan(&episodeCount); err != nil {
		t.Fatalf("count episodes: %v", err)
	}
	if episodeCount != 2 {
		t.Fatalf("expected 2 episode rows, got %d", episodeCount)
	}
}

func TestSaveIsIdempotentOnReplay(t *testing.T) {
	s := newTestStore(t)
	f := sampleFeed()

	for i := 0; i < 3; i++ {
		if err := s.Save(context.Background(), "https://example.com/feed.xml", f); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	db, err := s.open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	var episodeCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM episodes").Scan(&episodeCount); err != nil {
		t.Fatalf("count episodes: %v", err)
	}
	if episodeCount != 2 {
		t.Fatalf("expected replay to leave 2 episode rows, got %d", episodeCount)
	}
}

func TestSaveUpdatesChangedEpisodeFields(t *testing.T) {
	s := newTestStore(t)
	f := sampleFeed()
	if err := s.Save(context.Background(), "https://example.com/feed.xml", f); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	f.Episodes[0].Title = "First (Updated)"
	if err := s.Save(context.Background(), "https://example.com/feed.xml", f); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	db, err := s.open(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	var title string
	err = db.QueryRow("SELECT title FROM episodes WHERE guid = ?", "ep-1").Scan(&title)
	if err != nil {
		t.Fatalf("query title: %v", err)
	}
	if title != "First (Updated)" {
		t.Fatalf("expected updated title, got %q", title)
	}
}

func TestPodcastKeyStableAcrossCase(t *testing.T) {
	a := podcastKey("Example Show", "https://example.com")
	b := podcastKey("example show", "https://EXAMPLE.com")
	if a != b {
		t.Fatalf("expected case-insensitive key match, got %q vs %q", a, b)
	}
}

func TestSaveWithNoEpisodesSucceeds(t *testing.T) {
	s := newTestStore(t)
	f := feed.PodcastFeed{Title: "Empty Show", Link: "https://empty.example.com"}
	if err := s.Save(context.Background(), "https://empty.example.com/feed.xml", f); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}
