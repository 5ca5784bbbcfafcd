// Package model defines shared data structures.
package model

import "time"

// Feed represents one syndication source, identified by its canonical
// (post-redirect) URL. Rows are created on the first successful fetch and
// never deleted by the engine.
type Feed struct {
	ID            string     `db:"id" json:"id"`
	URL           string     `db:"url" json:"url"`
	Title         string     `db:"title" json:"title"`
	Description   *string    `db:"description" json:"description"`
	SiteURL       *string    `db:"site_url" json:"site_url"`
	FaviconURL    *string    `db:"favicon_url" json:"favicon_url"`
	LastFetchedAt *time.Time `db:"last_fetched_at" json:"last_fetched_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Article represents one entry from a feed. (FeedID, GUID) is the sole
// identity key; articles are insert-only and never deleted by the engine.
type Article struct {
	ID          string     `db:"id" json:"id"`
	FeedID      string     `db:"feed_id" json:"feed_id"`
	GUID        string     `db:"guid" json:"guid"`
	Title       string     `db:"title" json:"title"`
	URL         string     `db:"url" json:"url"`
	Author      *string    `db:"author" json:"author"`
	Content     *string    `db:"content" json:"content"`
	Summary     *string    `db:"summary" json:"summary"`
	PublishedAt *time.Time `db:"published_at" json:"published_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// UserFeed is a user's subscription to a Feed, unique per (user_id, feed_id).
type UserFeed struct {
	ID          string  `db:"id" json:"id"`
	UserID      string  `db:"user_id" json:"user_id"`
	FeedID      string  `db:"feed_id" json:"feed_id"`
	FolderID    *string `db:"folder_id" json:"folder_id"`
	CustomTitle *string `db:"custom_title" json:"custom_title"`
}

// UserArticle is per-user overlay state (read/starred) layered over shared
// articles. The ingestion engine never writes these rows.
type UserArticle struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	ArticleID string     `db:"article_id" json:"article_id"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	IsStarred bool       `db:"is_starred" json:"is_starred"`
	ReadAt    *time.Time `db:"read_at" json:"read_at"`
	StarredAt *time.Time `db:"starred_at" json:"starred_at"`
}

// Folder groups a user's subscriptions.
type Folder struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"user_id"`
	Name      string `db:"name" json:"name"`
	SortOrder int    `db:"sort_order" json:"sort_order"`
}

// ParsedFeed is the canonical, format-agnostic representation of a fetched
// RSS 2.0 or Atom document.
type ParsedFeed struct {
	Title       string
	Description *string
	SiteURL     *string
	Items       []ParsedItem
}

// ParsedItem is one normalized entry from a ParsedFeed.
type ParsedItem struct {
	GUID        string
	Title       string
	URL         string
	Author      *string
	Content     *string
	Summary     *string
	PublishedAt *time.Time
}

// ArticleWithState is an article joined with one user's overlay state, for
// the read-side API.
type ArticleWithState struct {
	Article
	IsRead    bool `db:"is_read" json:"is_read"`
	IsStarred bool `db:"is_starred" json:"is_starred"`
}

// Subscription is a user's view of a feed, honoring any custom title.
type Subscription struct {
	Feed
	FolderID    *string `db:"folder_id" json:"folder_id"`
	CustomTitle *string `db:"custom_title" json:"custom_title"`
}
