package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"newsnotify/internal/alerts"
	"newsnotify/internal/api"
	"newsnotify/internal/changefeed"
	"newsnotify/internal/config"
	"newsnotify/internal/crawler"
	"newsnotify/internal/enrich"
	"newsnotify/internal/logging"
	"newsnotify/internal/notify"
	"newsnotify/internal/scheduler"
	"newsnotify/internal/storage"
)

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

	enricher := enrich.NewEnricher(
		enrich.NewArticleFetcher(),
		enrich.NewSummaryClient(cfg.Summary),
		log.With().Str("component", "enrich").Logger(),
	)

	dispatcher := notify.NewDispatcher(
		notify.NewEnvResolver(cfg.SecretPrefix),
		notify.NewWebhookClient(),
		notify.NewTopicPublisher(rdb),
		cfg.PaceDelay,
		log.With().Str("component", "dispatch").Logger(),
	)

	worker := notify.NewWorker(
		feed, enricher, dispatcher, store,
		cfg.Notifiers, cfg.Summarizers,
		log.With().Str("component", "worker").Logger(),
	)

	// change feed の購読は常駐
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	sched, err := scheduler.New(cfg.CronSpec, c, cfg.Notifiers, log.With().Str("component", "scheduler").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("init scheduler failed")
	}
	sched.Start()
	defer sched.Stop()

	relay := alerts.NewRelay(
		notify.NewTopicPublisher(rdb),
		cfg.AlertTopic,
		log.With().Str("component", "alerts").Logger(),
	)

	r := gin.Default()
	api.NewServer(c, worker, relay, cfg.Notifiers, log.With().Str("component", "api").Logger()).RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Info().Str("addr", addr).Msg("starting api server")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exit")
	}
}
