package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedEntry フィード中の記事 1 件
type FeedEntry struct {
	Title     string
	Link      string
	Published time.Time
	// "general:products/amazon-rds,marketing:marchitecture/databases" 形式
	Category string
}

// Feed フィード全体。Updated はフィード自体の最終更新時刻（取れない場合はゼロ値）
type Feed struct {
	Updated time.Time
	Entries []FeedEntry
}

// FeedSource リモートフィードの取得。巡回本体からは差し替え可能にしておく
type FeedSource interface {
	Fetch(ctx context.Context, url string) (Feed, error)
}

// GofeedSource gofeed による RSS / Atom 取得
type GofeedSource struct {
	parser *gofeed.Parser
}

func NewGofeedSource() *GofeedSource {
	return &GofeedSource{parser: gofeed.NewParser()}
}

func (s *GofeedSource) Fetch(ctx context.Context, url string) (Feed, error) {
	parsed, err := s.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return Feed{}, fmt.Errorf("fetch feed %s: %w", url, err)
	}

	feed := Feed{Entries: make([]FeedEntry, 0, len(parsed.Items))}
	if parsed.UpdatedParsed != nil {
		feed.Updated = *parsed.UpdatedParsed
	} else if parsed.PublishedParsed != nil {
		feed.Updated = *parsed.PublishedParsed
	}

	for _, it := range parsed.Items {
		if it.Link == "" {
			continue
		}

		entry := FeedEntry{
			Title:    strings.TrimSpace(it.Title),
			Link:     it.Link,
			Category: strings.Join(it.Categories, ","),
		}
		if it.PublishedParsed != nil {
			entry.Published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			entry.Published = *it.UpdatedParsed
		}

		feed.Entries = append(feed.Entries, entry)
	}

	return feed, nil
}
