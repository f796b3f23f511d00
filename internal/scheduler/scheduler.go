package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"newsnotify/internal/config"
	"newsnotify/internal/crawler"
)

// Scheduler は notifier ごとの cron で巡回ジョブを回す。
// notifier 側に cronSpec がなければ全体デフォルトを使う
type Scheduler struct {
	cron      *cron.Cron
	crawler   *crawler.Crawler
	notifiers map[string]config.Notifier
	log       zerolog.Logger
}

const jobTimeout = 10 * time.Minute

func New(defaultSpec string, c *crawler.Crawler, notifiers map[string]config.Notifier, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		crawler:   c,
		notifiers: notifiers,
		log:       log,
	}

	for name, n := range s.notifiers {
		spec := n.CronSpec
		if spec == "" {
			spec = defaultSpec
		}
		name, n := name, n
		if _, err := s.cron.AddFunc(spec, func() { s.runOnce(name, n) }); err != nil {
			return nil, err
		}
		log.Info().Str("notifier", name).Str("spec", spec).Msg("poll job registered")
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 起動直後の初回巡回は少し遅らせ、接続系の初期化と競合しないようにする
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		for name, n := range s.notifiers {
			go s.runOnce(name, n)
		}
	})
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runOnce(name string, n config.Notifier) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.log.Info().Str("notifier", name).Msg("start poll job")
	stats, err := s.crawler.Poll(ctx, name, n)
	if err != nil {
		s.log.Error().Err(err).Str("notifier", name).Msg("poll job failed")
		return
	}
	s.log.Info().
		Str("notifier", name).
		Int("fetched", stats.Fetched).
		Int("inserted", stats.Inserted).
		Int("duplicates", stats.Duplicates).
		Int("skipped_old", stats.SkippedOld).
		Msg("poll job done")
}
