package rss

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/samber/lo"

	"greader/internal/database"
	"greader/internal/model"
)

// Subscriber identifies a user to attach to the feed after reconciliation.
type Subscriber struct {
	UserID   string
	FolderID *string
}

// ReconcileResult reports the committed feed record and how many article
// rows the run actually inserted. A repeat run over the same payload reports
// zero.
type ReconcileResult struct {
	Feed         model.Feed
	ArticleCount int
}

// Reconciler merges parsed feeds into persisted records. Articles are
// insert-only: a retried or overlapping fetch never mutates a stored article,
// which keeps the operation idempotent and leaves per-user overlay state
// untouched.
type Reconciler struct {
	store database.Store
	now   func() time.Time
}

func NewReconciler(store database.Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Reconcile commits parsed under the canonical sourceURL. Feed metadata
// update and the article batch ride one transaction; a failure there commits
// nothing. When sub is non-nil a subscription is attached afterwards,
// independent of whether the feed already existed.
func (r *Reconciler) Reconcile(ctx context.Context, parsed *model.ParsedFeed, sourceURL string, sub *Subscriber) (*ReconcileResult, error) {
	now := r.now().UTC()
	feed := model.Feed{
		URL:           sourceURL,
		Title:         parsed.Title,
		Description:   parsed.Description,
		SiteURL:       parsed.SiteURL,
		FaviconURL:    faviconURL(parsed.SiteURL),
		LastFetchedAt: &now,
	}

	articles := lo.Map(parsed.Items, func(it model.ParsedItem, _ int) model.Article {
		return model.Article{
			GUID:        it.GUID,
			Title:       it.Title,
			URL:         it.URL,
			Author:      it.Author,
			Content:     it.Content,
			Summary:     it.Summary,
			PublishedAt: it.PublishedAt,
		}
	})

	inserted, err := r.store.SaveFeed(ctx, &feed, articles)
	if err != nil {
		return nil, &PersistenceError{Op: "save feed " + sourceURL, Err: err}
	}

	if sub != nil {
		uf := model.UserFeed{
			UserID:   sub.UserID,
			FeedID:   feed.ID,
			FolderID: sub.FolderID,
		}
		if err := r.store.UpsertUserFeed(ctx, &uf); err != nil {
			return nil, &PersistenceError{Op: "attach subscription", Err: err}
		}
	}

	return &ReconcileResult{Feed: feed, ArticleCount: inserted}, nil
}

// faviconURL derives the favicon deterministically from the site hostname.
// No network call is made; unresolvable site URLs yield nil.
func faviconURL(siteURL *string) *string {
	if siteURL == nil {
		return nil
	}
	u, err := url.Parse(*siteURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	s := fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=32", u.Hostname())
	return &s
}
