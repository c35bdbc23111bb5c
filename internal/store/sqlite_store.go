package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lysyi3m/podcastcrawler/internal/feed"
)

const schema = `
CREATE TABLE IF NOT EXISTS podcasts (
	podcast_key  TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	link         TEXT NOT NULL,
	description  TEXT,
	author       TEXT,
	language     TEXT,
	image        TEXT,
	source_url   TEXT NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	podcast_key      TEXT NOT NULL REFERENCES podcasts(podcast_key),
	guid             TEXT NOT NULL,
	title            TEXT,
	description      TEXT,
	published_at     TIMESTAMP,
	duration_seconds INTEGER,
	audio_url        TEXT,
	image            TEXT,
	updated_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (podcast_key, guid)
);
`

// SQLiteStore is the reference PodcastStore implementation. It opens
// its database file lazily, on the first Save call, so a crawler run
// that never successfully parses a feed never creates one.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", s.path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	s.db = db
	return db, nil
}

// Close releases the underlying database handle, if one was opened.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Save upserts the podcast row and every episode row, keyed on
// (podcast_key, guid). podcast_key is derived from title+link rather
// than assigned by the caller, matching the idempotency-on-identity
// rule: a feed with the same title and link (compared
// case-insensitively) always resolves to the same podcast row,
// whichever URL it was fetched from; sourceURL is stored, not keyed on.
func (s *SQLiteStore) Save(ctx context.Context, sourceURL string, f feed.PodcastFeed) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	key := podcastKey(f.Title, f.Link)
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO podcasts (podcast_key, title, link, description, author, language, image, source_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (podcast_key) DO UPDATE SET
			title = excluded.title,
			link = excluded.link,
			description = excluded.description,
			author = excluded.author,
			language = excluded.language,
			image = excluded.image,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at
	`, key, f.Title, f.Link, f.Description, f.Author, f.Language, f.Image, sourceURL, now)
	if err != nil {
		return fmt.Errorf("upsert podcast: %w", err)
	}

	for _, ep := range f.Episodes {
		var durationSeconds *int64
		if ep.Duration != nil {
			d := int64(ep.Duration.Seconds())
			durationSeconds = &d
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO episodes (podcast_key, guid, title, description, published_at, duration_seconds, audio_url, image, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (podcast_key, guid) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				published_at = excluded.published_at,
				duration_seconds = excluded.duration_seconds,
				audio_url = excluded.audio_url,
				image = excluded.image,
				updated_at = excluded.updated_at
		`, key, ep.GUID, ep.Title, ep.Description, ep.PublishedAt, durationSeconds, ep.AudioURL, ep.Image, now)
		if err != nil {
			return fmt.Errorf("upsert episode %q: %w", ep.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func podcastKey(title, link string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(title) + "\x00" + strings.ToLower(link)))
	return hex.EncodeToString(sum[:])
}
