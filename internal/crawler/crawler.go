package crawler

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsnotify/internal/changefeed"
	"newsnotify/internal/config"
	"newsnotify/internal/storage"
)

const (
	servicePrefix      = "general:products/"
	architecturePrefix = "marketing:marchitecture/"
)

// Stats 巡回 1 回分の集計
type Stats struct {
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	SkippedOld int `json:"skippedOld"`
}

func (s *Stats) add(o Stats) {
	s.Fetched += o.Fetched
	s.Inserted += o.Inserted
	s.Duplicates += o.Duplicates
	s.SkippedOld += o.SkippedOld
}

// Crawler はフィードを巡回し、新着のみを条件付き INSERT で登録する。
// 挿入に成功した行は change feed へ INSERT レコードとして流す
type Crawler struct {
	source FeedSource
	store  *storage.Store
	feed   changefeed.Feed
	log    zerolog.Logger
	now    func() time.Time
}

func New(source FeedSource, store *storage.Store, feed changefeed.Feed, log zerolog.Logger) *Crawler {
	return &Crawler{
		source: source,
		store:  store,
		feed:   feed,
		log:    log,
		now:    time.Now,
	}
}

// PollAll 設定済みの全 notifier を巡回する。
// ストアのエラーのみ致命的として伝播し、呼び出し側のリトライに委ねる
func (c *Crawler) PollAll(ctx context.Context, notifiers map[string]config.Notifier) (Stats, error) {
	var total Stats
	for name, n := range notifiers {
		stats, err := c.Poll(ctx, name, n)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Poll notifier 1 件分の巡回。URL 単位で冪等
func (c *Crawler) Poll(ctx context.Context, name string, n config.Notifier) (Stats, error) {
	var stats Stats
	now := c.now()

	for feedName, feedURL := range n.RSSURL {
		feed, err := c.source.Fetch(ctx, feedURL)
		if err != nil {
			// フィード単位の取得失敗は他のフィードに波及させない
			c.log.Warn().Err(err).Str("feed", feedName).Msg("fetch feed failed")
			continue
		}

		// フィード自体が長期間更新されていなければ個別エントリも見ない
		if !feed.Updated.IsZero() && !recentlyPublished(now, feed.Updated, n.MaxOldDays) {
			c.log.Info().Str("feed", feedName).Time("updated", feed.Updated).Msg("skip stale feed")
			continue
		}

		for _, entry := range feed.Entries {
			stats.Fetched++

			if entry.Published.IsZero() {
				c.log.Warn().Str("url", entry.Link).Msg("skip entry without pubdate")
				continue
			}
			if !recentlyPublished(now, entry.Published, n.MaxOldDays) {
				stats.SkippedOld++
				c.log.Debug().Str("title", entry.Title).Msg("old entry. skip")
				continue
			}

			services, architectures := partitionCategories(entry.Category)

			row := &storage.Entry{
				URL:                    entry.Link,
				NotifierName:           name,
				Title:                  entry.Title,
				Category:               feedName,
				PubTime:                entry.Published.Format(time.RFC3339),
				ServiceCategories:      services,
				MarketingArchitectures: architectures,
				CreatedAtJST:           storage.NowJST(now),
				Status:                 storage.StatusNew,
			}

			result, err := c.store.InsertIfAbsent(ctx, row)
			if err != nil {
				// ストアが信頼できない状態で続行すると「既読扱いの取りこぼし」が起きるため中断
				return stats, err
			}

			switch result {
			case storage.AlreadyExists:
				stats.Duplicates++
				c.log.Debug().Str("url", entry.Link).Msg("duplicate entry")
			case storage.Inserted:
				stats.Inserted++
				c.log.Info().Str("url", entry.Link).Str("title", entry.Title).Msg("entry recorded")

				rec := changefeed.Record{
					EventName:              changefeed.EventInsert,
					URL:                    row.URL,
					Title:                  row.Title,
					Category:               row.Category,
					PubTime:                row.PubTime,
					NotifierName:           row.NotifierName,
					ServiceCategories:      services,
					MarketingArchitectures: architectures,
				}
				// 通知の発火に失敗しても行は記録済み。再配送は dispatch API 経由で可能
				if err := c.feed.Publish(ctx, rec); err != nil {
					c.log.Error().Err(err).Str("url", row.URL).Msg("publish change record failed")
				}
			}
		}
	}

	return stats, nil
}

// recentlyPublished 経過日数（切り捨て）が maxOldDays 以下なら新着扱い。
// ちょうど maxOldDays 日経過したものは対象に含む
func recentlyPublished(now, pub time.Time, maxOldDays int) bool {
	days := int(now.Sub(pub).Hours() / 24)
	return days <= maxOldDays
}

// partitionCategories カンマ区切りの category 文字列を
// サービスタグとアーキテクチャタグに振り分ける。未知のプレフィックスは無視
func partitionCategories(raw string) (services, architectures []string) {
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		switch {
		case strings.HasPrefix(c, servicePrefix):
			services = append(services, strings.TrimPrefix(c, servicePrefix))
		case strings.HasPrefix(c, architecturePrefix):
			architectures = append(architectures, strings.TrimPrefix(c, architecturePrefix))
		}
	}
	return services, architectures
}
