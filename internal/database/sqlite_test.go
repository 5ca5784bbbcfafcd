package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greader/internal/model"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strp(s string) *string { return &s }

func saveFeed(t *testing.T, s *SQLiteStore, url string, articles ...model.Article) model.Feed {
	t.Helper()
	now := time.Now().UTC()
	feed := model.Feed{URL: url, Title: "Feed " + url, LastFetchedAt: &now}
	_, err := s.SaveFeed(context.Background(), &feed, articles)
	require.NoError(t, err)
	return feed
}

func TestSaveFeedInsertThenUpdate(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	now := time.Now().UTC()
	feed := model.Feed{
		URL:           "http://example.com/rss",
		Title:         "Before",
		Description:   strp("first"),
		LastFetchedAt: &now,
	}
	inserted, err := s.SaveFeed(ctx, &feed, []model.Article{
		{GUID: "a", Title: "A"},
		{GUID: "b", Title: "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	require.NotEmpty(t, feed.ID)

	// Same URL: metadata is overwritten, identity and created_at stay.
	later := now.Add(time.Hour)
	update := model.Feed{
		URL:           "http://example.com/rss",
		Title:         "After",
		LastFetchedAt: &later,
	}
	inserted, err = s.SaveFeed(ctx, &update, []model.Article{
		{GUID: "b", Title: "B again"},
		{GUID: "c", Title: "C"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, feed.ID, update.ID)
	assert.Equal(t, feed.CreatedAt.Unix(), update.CreatedAt.Unix())

	got, err := s.GetFeed(ctx, feed.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "After", got.Title)
	assert.Nil(t, got.Description)

	arts, err := s.ListArticles(ctx, "nobody", feed.ID)
	require.NoError(t, err)
	assert.Len(t, arts, 3)
}

func TestConcurrentSaveFeed(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	// Mirrors a sweep: several workers committing write transactions against
	// the same file at once. Every save must succeed, never SQLITE_BUSY.
	const workers = 5
	const savesPerWorker = 20
	errs := make(chan error, workers*savesPerWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < savesPerWorker; i++ {
				now := time.Now().UTC()
				feed := model.Feed{
					URL:           fmt.Sprintf("http://example.com/feeds/%d/%d", w, i),
					Title:         "Concurrent",
					LastFetchedAt: &now,
				}
				articles := make([]model.Article, 30)
				for j := range articles {
					articles[j] = model.Article{
						GUID:  fmt.Sprintf("g-%d-%d-%d", w, i, j),
						Title: "Article",
					}
				}
				_, err := s.SaveFeed(ctx, &feed, articles)
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestStaleFeeds(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	never := model.Feed{URL: "http://never.example.com/rss", Title: "never"}
	_, err := s.SaveFeed(ctx, &never, nil)
	require.NoError(t, err)

	old := time.Now().UTC().Add(-time.Hour)
	stale := model.Feed{URL: "http://stale.example.com/rss", Title: "stale", LastFetchedAt: &old}
	_, err = s.SaveFeed(ctx, &stale, nil)
	require.NoError(t, err)

	fresh := time.Now().UTC()
	current := model.Feed{URL: "http://fresh.example.com/rss", Title: "fresh", LastFetchedAt: &fresh}
	_, err = s.SaveFeed(ctx, &current, nil)
	require.NoError(t, err)

	got, err := s.StaleFeeds(ctx, time.Now().UTC().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	urls := []string{got[0].URL, got[1].URL}
	assert.Contains(t, urls, never.URL)
	assert.Contains(t, urls, stale.URL)
}

func TestUpsertUserFeedKeepsFolder(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	feed := saveFeed(t, s, "http://folders.example.com/rss")

	folder := model.Folder{UserID: "u1", Name: "Tech"}
	require.NoError(t, s.CreateFolder(ctx, &folder))

	require.NoError(t, s.UpsertUserFeed(ctx, &model.UserFeed{
		UserID:   "u1",
		FeedID:   feed.ID,
		FolderID: &folder.ID,
	}))

	// A later attach without a folder keeps the stored one.
	require.NoError(t, s.UpsertUserFeed(ctx, &model.UserFeed{
		UserID: "u1",
		FeedID: feed.ID,
	}))

	subs, err := s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].FolderID)
	assert.Equal(t, folder.ID, *subs[0].FolderID)
}

func TestDeleteSubscriptionLeavesFeedIntact(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	feed := saveFeed(t, s, "http://shared.example.com/rss", model.Article{GUID: "g", Title: "G"})

	require.NoError(t, s.UpsertUserFeed(ctx, &model.UserFeed{UserID: "u1", FeedID: feed.ID}))
	require.NoError(t, s.UpsertUserFeed(ctx, &model.UserFeed{UserID: "u2", FeedID: feed.ID}))

	require.NoError(t, s.DeleteSubscription(ctx, "u1", feed.ID))

	subs, err := s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	// The shared rows survive for the remaining subscriber.
	subs, err = s.ListSubscriptions(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	arts, err := s.ListArticles(ctx, "u2", feed.ID)
	require.NoError(t, err)
	assert.Len(t, arts, 1)
}

func TestOverlayStateIsPerUser(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	feed := saveFeed(t, s, "http://overlay.example.com/rss", model.Article{GUID: "g", Title: "G"})

	arts, err := s.ListArticles(ctx, "u1", feed.ID)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	articleID := arts[0].ID

	require.NoError(t, s.SetArticleRead(ctx, "u1", articleID, true, time.Now().UTC()))
	require.NoError(t, s.SetArticleStarred(ctx, "u1", articleID, true, time.Now().UTC()))

	arts, err = s.ListArticles(ctx, "u1", feed.ID)
	require.NoError(t, err)
	assert.True(t, arts[0].IsRead)
	assert.True(t, arts[0].IsStarred)

	// Another user's view is untouched.
	arts, err = s.ListArticles(ctx, "u2", feed.ID)
	require.NoError(t, err)
	assert.False(t, arts[0].IsRead)
	assert.False(t, arts[0].IsStarred)

	// Unread clears the flag and the timestamp, starring survives.
	require.NoError(t, s.SetArticleRead(ctx, "u1", articleID, false, time.Now().UTC()))
	arts, err = s.ListArticles(ctx, "u1", feed.ID)
	require.NoError(t, err)
	assert.False(t, arts[0].IsRead)
	assert.True(t, arts[0].IsStarred)
}

func TestFoldersOrdering(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.CreateFolder(ctx, &model.Folder{UserID: "u1", Name: "News", SortOrder: 2}))
	require.NoError(t, s.CreateFolder(ctx, &model.Folder{UserID: "u1", Name: "Code", SortOrder: 1}))
	require.NoError(t, s.CreateFolder(ctx, &model.Folder{UserID: "u2", Name: "Other"}))

	folders, err := s.ListFolders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "Code", folders[0].Name)
	assert.Equal(t, "News", folders[1].Name)
}
