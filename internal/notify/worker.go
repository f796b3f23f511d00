package notify

import (
	"context"

	"github.com/rs/zerolog"

	"newsnotify/internal/changefeed"
	"newsnotify/internal/config"
	"newsnotify/internal/enrich"
	"newsnotify/internal/storage"
)

// Worker は change feed の INSERT レコードを受けて
// 要約 → 全宛先へ送信 → 監査書き戻し、を 1 件ずつ行う
type Worker struct {
	feed        changefeed.Feed
	enricher    *enrich.Enricher
	dispatcher  *Dispatcher
	store       *storage.Store
	notifiers   map[string]config.Notifier
	summarizers map[string]config.Summarizer
	log         zerolog.Logger
}

func NewWorker(
	feed changefeed.Feed,
	enricher *enrich.Enricher,
	dispatcher *Dispatcher,
	store *storage.Store,
	notifiers map[string]config.Notifier,
	summarizers map[string]config.Summarizer,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		feed:        feed,
		enricher:    enricher,
		dispatcher:  dispatcher,
		store:       store,
		notifiers:   notifiers,
		summarizers: summarizers,
		log:         log,
	}
}

// BatchStats dispatch 1 バッチ分の集計
type BatchStats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Run change feed を購読し続ける。ctx キャンセルで抜ける
func (w *Worker) Run(ctx context.Context) {
	ch, unsub := w.feed.Subscribe(ctx)
	defer unsub()

	w.log.Info().Msg("dispatch worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			w.ProcessBatch(ctx, []changefeed.Record{rec})
		}
	}
}

// ProcessBatch 変更レコードのバッチを処理する。INSERT 以外は無視し、
// 1 件の失敗は他の件に波及させない
func (w *Worker) ProcessBatch(ctx context.Context, recs []changefeed.Record) BatchStats {
	var stats BatchStats
	for _, rec := range recs {
		if rec.EventName != changefeed.EventInsert {
			// 監査書き戻しなどの UPDATE で再通知しない
			stats.Skipped++
			w.log.Debug().Str("event", rec.EventName).Msg("skip non-insert event")
			continue
		}
		if w.process(ctx, rec) {
			stats.Processed++
		} else {
			stats.Failed++
		}
	}
	return stats
}

func (w *Worker) process(ctx context.Context, rec changefeed.Record) bool {
	ncfg, ok := w.notifiers[rec.NotifierName]
	if !ok {
		w.log.Warn().Str("notifier", rec.NotifierName).Str("url", rec.URL).
			Msg("unknown notifier, skip")
		return false
	}
	scfg, ok := w.summarizers[ncfg.SummarizerName]
	if !ok {
		w.log.Error().Str("summarizer", ncfg.SummarizerName).Str("url", rec.URL).
			Msg("unknown summarizer, skip")
		w.markEnrichFailed(ctx, rec.URL)
		return false
	}

	item, err := w.enricher.Enrich(ctx, rec, scfg, ncfg.PromptVersion)
	if err != nil {
		// 要約できない記事は通知しない。行は summary なしのまま残る
		w.log.Error().Err(err).Str("url", rec.URL).Msg("enrichment failed, skip dispatch")
		w.markEnrichFailed(ctx, rec.URL)
		return false
	}

	delivered, failedDest := w.dispatcher.Dispatch(ctx, item, ncfg.Destinations)
	w.log.Info().
		Str("url", rec.URL).
		Int("delivered", delivered).
		Int("failed", failedDest).
		Msg("dispatch done")

	// 宛先の成否に関わらず監査フィールドは書き戻す
	if err := w.store.UpdateAuditFields(ctx, rec.URL, item.Summary, item.Detail); err != nil {
		w.log.Error().Err(err).Str("url", rec.URL).Msg("audit update failed")
	}
	return true
}

func (w *Worker) markEnrichFailed(ctx context.Context, url string) {
	if err := w.store.UpdateStatus(ctx, url, storage.StatusEnrichFailed); err != nil {
		w.log.Error().Err(err).Str("url", url).Msg("status update failed")
	}
}
