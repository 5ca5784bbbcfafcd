package rss

import (
	"bytes"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"greader/internal/model"
)

// Fallback titles for feeds and items that omit one.
const (
	untitledFeed = "Untitled Feed"
	untitledItem = "Untitled"
)

// Parser normalizes RSS 2.0 and Atom documents into a ParsedFeed. Anything
// that is neither is a hard ParseError; there is no best-effort fallback.
type Parser struct {
	fp *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{fp: gofeed.NewParser()}
}

// Parse normalizes document. sourceURL participates only in the synthesized
// guid fallback for items lacking both an explicit id and a link; that
// fallback is deterministic but collision-prone (two untitled items from the
// same feed share a guid), a known limitation kept for identity stability.
func (p *Parser) Parse(document []byte, sourceURL string) (*model.ParsedFeed, error) {
	feed, err := p.fp.Parse(bytes.NewReader(document))
	if err != nil {
		return nil, &ParseError{Reason: "unrecognized document structure", Err: err}
	}
	if feed.FeedType != "rss" && feed.FeedType != "atom" {
		return nil, &ParseError{Reason: "unsupported feed type " + feed.FeedType}
	}

	title := feed.Title
	if title == "" {
		title = untitledFeed
	}

	return &model.ParsedFeed{
		Title:       title,
		Description: nullable(feed.Description),
		SiteURL:     nullable(feed.Link),
		Items: lo.Map(feed.Items, func(it *gofeed.Item, _ int) model.ParsedItem {
			return extractItem(it, sourceURL)
		}),
	}, nil
}

// extractItem applies the per-item extraction rules, first match wins.
func extractItem(it *gofeed.Item, sourceURL string) model.ParsedItem {
	title := it.Title
	if title == "" {
		title = untitledItem
	}

	guid := it.GUID
	if guid == "" {
		guid = it.Link
	}
	if guid == "" {
		guid = sourceURL + "-" + title
	}

	var author *string
	if it.Author != nil {
		author = nullable(it.Author.Name)
	}

	// Full content preferred; the short-form field stands in when the feed
	// carries no separate body.
	content := nullable(it.Content)
	if content == nil {
		content = nullable(it.Description)
	}

	// Drop the summary when it duplicates the content verbatim.
	summary := nullable(it.Description)
	if summary != nil && content != nil && *summary == *content {
		summary = nil
	}

	published := it.PublishedParsed
	if published == nil {
		published = it.UpdatedParsed
	}

	return model.ParsedItem{
		GUID:        guid,
		Title:       title,
		URL:         it.Link,
		Author:      author,
		Content:     content,
		Summary:     summary,
		PublishedAt: published,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
