package enrich

import (
	"context"

	"github.com/rs/zerolog"

	"newsnotify/internal/changefeed"
	"newsnotify/internal/config"
)

// EnrichedEntry 変更レコード + 要約結果。通知成功まで永続化されない
type EnrichedEntry struct {
	changefeed.Record
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

// Enricher 本文取得と要約をまとめる
type Enricher struct {
	fetcher    ContentFetcher
	summarizer Summarizer
	log        zerolog.Logger
}

func NewEnricher(fetcher ContentFetcher, summarizer Summarizer, log zerolog.Logger) *Enricher {
	return &Enricher{fetcher: fetcher, summarizer: summarizer, log: log}
}

// Enrich 本文を取得して要約する。本文取得の失敗は空文で続行（fail-soft）、
// 要約の失敗はエラーとして返し、呼び出し側が通知をスキップする
func (e *Enricher) Enrich(ctx context.Context, rec changefeed.Record, s config.Summarizer, promptVersion string) (EnrichedEntry, error) {
	content, err := e.fetcher.FetchContent(ctx, rec.URL)
	if err != nil {
		e.log.Warn().Err(err).Str("url", rec.URL).Msg("content fetch failed, continue with empty body")
		content = ""
	}

	summary, detail, err := e.summarizer.Summarize(ctx, content, SummarizeParams{
		Language:      s.OutputLanguage,
		Persona:       s.Persona,
		PromptVersion: promptVersion,
	})
	if err != nil {
		return EnrichedEntry{}, err
	}

	return EnrichedEntry{Record: rec, Summary: summary, Detail: detail}, nil
}
