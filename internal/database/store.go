// Package database provides storage backends for the feed engine.
package database

import (
	"context"
	"time"

	"greader/internal/model"
)

// Store defines the interface for database operations. Both the SQLite and
// PostgreSQL implementations satisfy it.
//
// The ingestion engine calls only SaveFeed, GetFeed, StaleFeeds and
// UpsertUserFeed. The remaining methods serve the read-side collaborator API;
// in particular the engine never writes user_articles rows, so overlay state
// survives any refetch.
type Store interface {
	Close() error

	// DatabaseType returns the name of the backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SaveFeed upserts the feed by canonical URL and bulk-inserts articles
	// keyed (feed_id, guid), insert-only on conflict, in one transaction.
	// It fills feed.ID and feed.CreatedAt and returns the number of article
	// rows actually inserted. Nothing is committed on error.
	SaveFeed(ctx context.Context, feed *model.Feed, articles []model.Article) (int, error)

	GetFeed(ctx context.Context, id string) (*model.Feed, error)

	// StaleFeeds returns feeds never fetched or last fetched before cutoff.
	StaleFeeds(ctx context.Context, cutoff time.Time) ([]model.Feed, error)

	// UpsertUserFeed attaches a subscription keyed (user_id, feed_id). An
	// existing row keeps its folder unless the new one sets it.
	UpsertUserFeed(ctx context.Context, uf *model.UserFeed) error

	// Collaborator read/overlay side.
	ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, userID, feedID string) error
	ListArticles(ctx context.Context, userID, feedID string) ([]model.ArticleWithState, error)
	SetArticleRead(ctx context.Context, userID, articleID string, read bool, at time.Time) error
	SetArticleStarred(ctx context.Context, userID, articleID string, starred bool, at time.Time) error
	CreateFolder(ctx context.Context, f *model.Folder) error
	ListFolders(ctx context.Context, userID string) ([]model.Folder, error)
}
