// Package store defines the persistence collaborator for parsed feeds
// and ships a minimal SQLite-backed implementation of it.
package store

import (
	"context"

	"github.com/lysyi3m/podcastcrawler/internal/feed"
)

// PodcastStore is the persistence collaborator named by the task
// subsystem's design: a single idempotent write, nothing else. The
// task manager and worker pool know nothing about how (or whether) a
// feed ends up durable; they only ever see this interface.
type PodcastStore interface {
	// Save persists a parsed feed and all of its episodes. It is
	// idempotent on (podcast title+link, episode.guid): saving the
	// same feed twice must not create duplicate episode rows.
	Save(ctx context.Context, sourceURL string, f feed.PodcastFeed) error
}
