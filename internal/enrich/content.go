package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ContentFetcher 記事本文の取得。失敗しても呼び出し側は空文で続行する
type ContentFetcher interface {
	FetchContent(ctx context.Context, pageURL string) (string, error)
}

// ArticleFetcher 記事ページから main 要素のテキストを取り出す
type ArticleFetcher struct {
	timeout   time.Duration
	userAgent string
}

func NewArticleFetcher() *ArticleFetcher {
	return &ArticleFetcher{
		timeout:   20 * time.Second,
		userAgent: "newsnotify/1.0",
	}
}

func (f *ArticleFetcher) FetchContent(_ context.Context, pageURL string) (string, error) {
	lower := strings.ToLower(pageURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", fmt.Errorf("unsupported url scheme: %s", pageURL)
	}

	c := colly.NewCollector(colly.UserAgent(f.userAgent))
	c.SetRequestTimeout(f.timeout)

	var text string
	c.OnHTML("main", func(e *colly.HTMLElement) {
		if text == "" {
			text = strings.TrimSpace(e.Text)
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("fetch article %s: %w", pageURL, err)
	}
	c.Wait()

	if text == "" {
		return "", fmt.Errorf("no main content in %s", pageURL)
	}
	return text, nil
}
