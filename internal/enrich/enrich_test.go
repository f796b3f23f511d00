package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"newsnotify/internal/changefeed"
	"newsnotify/internal/config"
)

func newSummaryServer(t *testing.T, text string) *SummaryClient {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// プロンプトが messages 形式で届いていること
		var req struct {
			Messages []json.RawMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)

		resp := map[string]any{
			"content": []map[string]string{{"text": text}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	return NewSummaryClient(config.SummaryAPIConfig{Endpoint: srv.URL, Model: "test-model"})
}

func TestSummarizeExtractsBlocks(t *testing.T) {
	client := newSummaryServer(t,
		"<thinking>- point one\n- point two\n</thinking><summary>X does Y.</summary></output>")

	summary, detail, err := client.Summarize(context.Background(), "body text", SummarizeParams{
		Language: "Japanese", Persona: "solutions architect", PromptVersion: "v1",
	})
	require.NoError(t, err)
	require.Equal(t, "X does Y.", summary)
	require.Equal(t, "- point one\n- point two\n", detail)
}

func TestSummarizeMalformedResponse(t *testing.T) {
	// <summary> 欠落
	client := newSummaryServer(t, "<thinking>- only thinking\n</thinking></output>")

	_, _, err := client.Summarize(context.Background(), "body", SummarizeParams{Language: "English"})
	require.ErrorIs(t, err, ErrMalformedSummary)
}

func TestSummarizeDuplicateBlocks(t *testing.T) {
	// ブロックは「ちょうど 1 個」でなければならない
	client := newSummaryServer(t,
		"<thinking>- a\n</thinking><summary>one</summary><summary>two</summary></output>")

	_, _, err := client.Summarize(context.Background(), "body", SummarizeParams{Language: "English"})
	require.ErrorIs(t, err, ErrMalformedSummary)
}

func TestArticleFetcherExtractsMain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><nav>menu</nav><main> Article body here. </main></body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := NewArticleFetcher()
	text, err := f.FetchContent(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Article body here.", text)
}

func TestArticleFetcherRejectsNonHTTP(t *testing.T) {
	f := NewArticleFetcher()
	_, err := f.FetchContent(context.Background(), "ftp://example.com/a")
	require.Error(t, err)
}

type stubSummarizer struct {
	gotContent string
	summary    string
	detail     string
	err        error
}

func (s *stubSummarizer) Summarize(_ context.Context, content string, _ SummarizeParams) (string, string, error) {
	s.gotContent = content
	return s.summary, s.detail, s.err
}

type failingFetcher struct{}

func (failingFetcher) FetchContent(context.Context, string) (string, error) {
	return "", context.DeadlineExceeded
}

func TestEnrichContentFetchFailSoft(t *testing.T) {
	// 本文取得に失敗しても空文で要約に進む
	stub := &stubSummarizer{summary: "S.", detail: "- d\n"}
	e := NewEnricher(failingFetcher{}, stub, zerolog.Nop())

	rec := changefeed.Record{EventName: changefeed.EventInsert, URL: "https://example.com/x"}
	item, err := e.Enrich(context.Background(), rec, config.Summarizer{OutputLanguage: "Japanese"}, "v1")
	require.NoError(t, err)
	require.Equal(t, "", stub.gotContent)
	require.Equal(t, "S.", item.Summary)
	require.Equal(t, rec.URL, item.URL)
}

func TestEnrichSummarizeFailurePropagates(t *testing.T) {
	stub := &stubSummarizer{err: ErrMalformedSummary}
	e := NewEnricher(failingFetcher{}, stub, zerolog.Nop())

	_, err := e.Enrich(context.Background(), changefeed.Record{URL: "https://example.com/x"},
		config.Summarizer{}, "v1")
	require.ErrorIs(t, err, ErrMalformedSummary)
}
