package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"greader/internal/model"
)

func init() {
	// The modernc driver registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLiteStore wraps the SQLite connection.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer. One pooled connection serializes the
	// sweep's concurrent SaveFeed transactions instead of surfacing them as
	// SQLITE_BUSY failures; the busy timeout covers external writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// WAL mode for better concurrency; sweeps write while readers browse.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DatabaseType returns the database backend name.
func (s *SQLiteStore) DatabaseType() string {
	return "SQLite"
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS feeds (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT,
		site_url TEXT,
		favicon_url TEXT,
		last_fetched_at DATETIME,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		feed_id TEXT NOT NULL REFERENCES feeds(id),
		guid TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		author TEXT,
		content TEXT,
		summary TEXT,
		published_at DATETIME,
		created_at DATETIME NOT NULL,
		UNIQUE(feed_id, guid)
	);
	CREATE TABLE IF NOT EXISTS user_feeds (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		feed_id TEXT NOT NULL REFERENCES feeds(id),
		folder_id TEXT REFERENCES folders(id),
		custom_title TEXT,
		UNIQUE(user_id, feed_id)
	);
	CREATE TABLE IF NOT EXISTS user_articles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		article_id TEXT NOT NULL REFERENCES articles(id),
		is_read INTEGER NOT NULL DEFAULT 0,
		is_starred INTEGER NOT NULL DEFAULT 0,
		read_at DATETIME,
		starred_at DATETIME,
		UNIQUE(user_id, article_id)
	);
	CREATE INDEX IF NOT EXISTS idx_articles_feed ON articles(feed_id, published_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const sqliteFeedCols = "id, url, title, description, site_url, favicon_url, last_fetched_at, created_at"

// SaveFeed upserts the feed by URL and inserts articles, insert-only on
// (feed_id, guid) conflict, all in one transaction.
func (s *SQLiteStore) SaveFeed(ctx context.Context, feed *model.Feed, articles []model.Article) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existing model.Feed
	err = tx.GetContext(ctx, &existing,
		"SELECT "+sqliteFeedCols+" FROM feeds WHERE url = ?", feed.URL)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		feed.ID = uuid.NewString()
		feed.CreatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feeds (id, url, title, description, site_url, favicon_url, last_fetched_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			feed.ID, feed.URL, feed.Title, feed.Description, feed.SiteURL,
			feed.FaviconURL, feed.LastFetchedAt, feed.CreatedAt)
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		feed.ID = existing.ID
		feed.CreatedAt = existing.CreatedAt
		_, err = tx.ExecContext(ctx, `
			UPDATE feeds SET title = ?, description = ?, site_url = ?, favicon_url = ?, last_fetched_at = ?
			WHERE id = ?`,
			feed.Title, feed.Description, feed.SiteURL, feed.FaviconURL,
			feed.LastFetchedAt, feed.ID)
		if err != nil {
			return 0, err
		}
	}

	inserted := 0
	for i := range articles {
		a := &articles[i]
		a.FeedID = feed.ID
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO articles (id, feed_id, guid, title, url, author, content, summary, published_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(feed_id, guid) DO NOTHING`,
			a.ID, a.FeedID, a.GUID, a.Title, a.URL, a.Author, a.Content,
			a.Summary, a.PublishedAt, a.CreatedAt)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetFeed returns a feed by ID, or nil when absent.
func (s *SQLiteStore) GetFeed(ctx context.Context, id string) (*model.Feed, error) {
	var f model.Feed
	err := s.db.GetContext(ctx, &f,
		"SELECT "+sqliteFeedCols+" FROM feeds WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// StaleFeeds returns feeds never fetched or last fetched before cutoff.
func (s *SQLiteStore) StaleFeeds(ctx context.Context, cutoff time.Time) ([]model.Feed, error) {
	var feeds []model.Feed
	err := s.db.SelectContext(ctx, &feeds,
		"SELECT "+sqliteFeedCols+" FROM feeds WHERE last_fetched_at IS NULL OR last_fetched_at < ?", cutoff)
	return feeds, err
}

// UpsertUserFeed attaches a subscription. COALESCE keeps the stored folder
// when the new row does not set one.
func (s *SQLiteStore) UpsertUserFeed(ctx context.Context, uf *model.UserFeed) error {
	if uf.ID == "" {
		uf.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_feeds (id, user_id, feed_id, folder_id, custom_title)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, feed_id) DO UPDATE SET
			folder_id = COALESCE(excluded.folder_id, user_feeds.folder_id),
			custom_title = COALESCE(excluded.custom_title, user_feeds.custom_title)`,
		uf.ID, uf.UserID, uf.FeedID, uf.FolderID, uf.CustomTitle)
	return err
}

// ListSubscriptions returns the user's feeds with folder and custom title.
func (s *SQLiteStore) ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.SelectContext(ctx, &subs, `
		SELECT f.id, f.url, f.title, f.description, f.site_url, f.favicon_url,
		       f.last_fetched_at, f.created_at, uf.folder_id, uf.custom_title
		FROM user_feeds uf
		JOIN feeds f ON f.id = uf.feed_id
		WHERE uf.user_id = ?
		ORDER BY f.title`, userID)
	return subs, err
}

// DeleteSubscription removes the user_feeds row only. Feed and article rows
// are shared and never deleted here.
func (s *SQLiteStore) DeleteSubscription(ctx context.Context, userID, feedID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM user_feeds WHERE user_id = ? AND feed_id = ?", userID, feedID)
	return err
}

// ListArticles returns a feed's articles with the user's overlay state.
func (s *SQLiteStore) ListArticles(ctx context.Context, userID, feedID string) ([]model.ArticleWithState, error) {
	var arts []model.ArticleWithState
	err := s.db.SelectContext(ctx, &arts, `
		SELECT a.id, a.feed_id, a.guid, a.title, a.url, a.author, a.content,
		       a.summary, a.published_at, a.created_at,
		       COALESCE(ua.is_read, 0) AS is_read,
		       COALESCE(ua.is_starred, 0) AS is_starred
		FROM articles a
		LEFT JOIN user_articles ua ON ua.article_id = a.id AND ua.user_id = ?
		WHERE a.feed_id = ?
		ORDER BY a.published_at DESC`, userID, feedID)
	return arts, err
}

// SetArticleRead upserts the overlay row and flips is_read.
func (s *SQLiteStore) SetArticleRead(ctx context.Context, userID, articleID string, read bool, at time.Time) error {
	var readAt *time.Time
	if read {
		readAt = &at
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_articles (id, user_id, article_id, is_read, read_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, article_id) DO UPDATE SET
			is_read = excluded.is_read,
			read_at = excluded.read_at`,
		uuid.NewString(), userID, articleID, read, readAt)
	return err
}

// SetArticleStarred upserts the overlay row and flips is_starred.
func (s *SQLiteStore) SetArticleStarred(ctx context.Context, userID, articleID string, starred bool, at time.Time) error {
	var starredAt *time.Time
	if starred {
		starredAt = &at
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_articles (id, user_id, article_id, is_starred, starred_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, article_id) DO UPDATE SET
			is_starred = excluded.is_starred,
			starred_at = excluded.starred_at`,
		uuid.NewString(), userID, articleID, starred, starredAt)
	return err
}

// CreateFolder inserts a folder for the user.
func (s *SQLiteStore) CreateFolder(ctx context.Context, f *model.Folder) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO folders (id, user_id, name, sort_order) VALUES (?, ?, ?, ?)",
		f.ID, f.UserID, f.Name, f.SortOrder)
	return err
}

// ListFolders returns the user's folders in sort order.
func (s *SQLiteStore) ListFolders(ctx context.Context, userID string) ([]model.Folder, error) {
	var folders []model.Folder
	err := s.db.SelectContext(ctx, &folders,
		"SELECT id, user_id, name, sort_order FROM folders WHERE user_id = ? ORDER BY sort_order, name", userID)
	return folders, err
}
