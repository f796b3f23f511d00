package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventInsert 新規挿入を表すイベント種別。
// UPDATE / REMOVE 相当のレコードは購読側で無視される
const EventInsert = "INSERT"

// Record は格納済み行 1 件分の変更通知。
// 監査フィールド（summary / detail）は含めない。通知はあくまで新規行の発火であり、
// 後続の書き戻しで再発火させないため
type Record struct {
	EventName    string `json:"eventName"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	PubTime      string `json:"pubtime"`
	NotifierName string `json:"notifierName"`

	ServiceCategories      []string `json:"serviceCategories,omitempty"`
	MarketingArchitectures []string `json:"marketingArchitectures,omitempty"`
}

// Feed は挿入ストリームの出入口。Publish は挿入成功の直後に呼ばれ、
// Subscribe は配送ワーカーが使う。配送は at-least-once 前提で、
// 重複レコードは下流（冪等な通知先）が吸収する
type Feed interface {
	Publish(ctx context.Context, rec Record) error
	Subscribe(ctx context.Context) (<-chan Record, func())
}

// redisFeed Redis pub/sub 実装
type redisFeed struct {
	rdb     *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisFeed(rdb *redis.Client, channel string, log zerolog.Logger) Feed {
	return &redisFeed{rdb: rdb, channel: channel, log: log}
}

func (f *redisFeed) Publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal change record: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change record: %w", err)
	}
	return nil
}

func (f *redisFeed) Subscribe(ctx context.Context) (<-chan Record, func()) {
	ps := f.rdb.Subscribe(ctx, f.channel)
	out := make(chan Record, 16)

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var rec Record
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				f.log.Warn().Err(err).Msg("drop malformed change record")
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = ps.Close() }
}

// memFeed プロセス内のみで使うフィード（テスト・単体実行用）
type memFeed struct {
	mu   sync.RWMutex
	subs map[int]chan Record
	seq  int
}

func NewMemFeed() Feed {
	return &memFeed{subs: map[int]chan Record{}}
}

func (f *memFeed) Publish(_ context.Context, rec Record) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		// 詰まった購読者はスキップ（ノンブロッキング配送）
		select {
		case ch <- rec:
		default:
		}
	}
	return nil
}

func (f *memFeed) Subscribe(_ context.Context) (<-chan Record, func()) {
	ch := make(chan Record, 16)

	f.mu.Lock()
	f.seq++
	id := f.seq
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
