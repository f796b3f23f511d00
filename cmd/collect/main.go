package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"newsnotify/internal/changefeed"
	"newsnotify/internal/config"
	"newsnotify/internal/crawler"
	"newsnotify/internal/logging"
	"newsnotify/internal/storage"
)

// 巡回を 1 回だけ実行して終了する入口。手動トリガや cron コンテナ向け
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.LogLevel)

	store, err := storage.NewStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("init store failed")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	feed := changefeed.NewRedisFeed(rdb, cfg.ChangeChannel, log.With().Str("component", "changefeed").Logger())

	c := crawler.New(
		crawler.NewGofeedSource(),
		store,
		feed,
		log.With().Str("component", "crawler").Logger(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stats, err := c.PollAll(ctx, cfg.Notifiers)
	if err != nil {
		log.Fatal().Err(err).Msg("poll failed")
	}
	log.Info().
		Int("fetched", stats.Fetched).
		Int("inserted", stats.Inserted).
		Int("duplicates", stats.Duplicates).
		Int("skipped_old", stats.SkippedOld).
		Msg("poll done")
}
