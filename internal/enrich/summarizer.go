package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"newsnotify/internal/config"
)

// ErrMalformedSummary 要約 API の応答に <summary> / <thinking> が
// ちょうど 1 個ずつ含まれていない場合のエラー。
// このエラーが出た記事は通知自体をスキップする
var ErrMalformedSummary = errors.New("summarizer response missing summary or thinking block")

// 応答は <output> プレフィルの続きとして返る
const beginningWord = "<output>"

var (
	summaryExpr  = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
	thinkingExpr = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
)

// SummarizeParams 要約 1 回分のパラメータ
type SummarizeParams struct {
	Language      string
	Persona       string
	PromptVersion string
}

// Summarizer 本文から要約（1〜2 文）と箇条書き詳細を生成する
type Summarizer interface {
	Summarize(ctx context.Context, content string, p SummarizeParams) (summary, detail string, err error)
}

// SummaryClient messages 互換 API を呼ぶ HTTP クライアント
type SummaryClient struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

func NewSummaryClient(cfg config.SummaryAPIConfig) *SummaryClient {
	return &SummaryClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *SummaryClient) Summarize(ctx context.Context, content string, p SummarizeParams) (string, string, error) {
	if c.endpoint == "" {
		return "", "", fmt.Errorf("summary client misconfigured: endpoint is empty")
	}

	prompt := buildPrompt(content, p)

	reqBody := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"temperature":       0.5,
		"top_p":             1,
		"top_k":             250,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": []map[string]string{{"type": "text", "text": prompt}},
			},
			{
				// <output> をプレフィルして出力形式を固定する
				"role":    "assistant",
				"content": []map[string]string{{"type": "text", "text": beginningWord}},
			},
		},
	}
	if c.model != "" {
		reqBody["model"] = c.model
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("marshal summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("summarize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", fmt.Errorf("summarizer error %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("decode summarizer response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", "", ErrMalformedSummary
	}

	return extractBlocks(beginningWord + parsed.Content[0].Text)
}

// extractBlocks <summary> と <thinking> をちょうど 1 個ずつ要求する
func extractBlocks(output string) (string, string, error) {
	summaries := summaryExpr.FindAllStringSubmatch(output, -1)
	details := thinkingExpr.FindAllStringSubmatch(output, -1)
	if len(summaries) != 1 || len(details) != 1 {
		return "", "", ErrMalformedSummary
	}
	return summaries[0][1], details[0][1], nil
}

func buildPrompt(content string, p SummarizeParams) string {
	switch p.PromptVersion {
	case "v2":
		return fmt.Sprintf(promptV2, content, p.Persona, p.Language)
	default: // default / v1
		return fmt.Sprintf(promptDefault, content, p.Persona, p.Language)
	}
}

const promptDefault = `
<input>%s</input>
<persona>You are a professional %s. </persona>
<instruction>Describe a new update in <input></input> tags in bullet points to describe "What is the new feature", "Who is this update good for". description shall be output in <thinking></thinking> tags and each thinking sentence must start with the bullet point "- " and end with "\n". Make final summary as per <summaryRule></summaryRule> tags. Try to shorten output for easy reading. You are not allowed to utilize any information except in the input. output format shall be in accordance with <outputFormat></outputFormat> tags.</instruction>
<outputLanguage>In %s.</outputLanguage>
<summaryRule>The final summary must consists of 1 or 2 sentences. Output format is defined in <outputFormat></outputFormat> tags.</summaryRule>
<outputFormat><thinking>(bullet points of the input)</thinking><summary>(final summary)</summary></outputFormat>
Follow the instruction.
`

const promptV2 = `
<input>%s</input>
<persona>You are a professional %s. </persona>
<targetAudience>
Your readers have the following characteristics:
- Have basic knowledge of AWS services
- Want to understand daily updates efficiently and quickly
- Find AWS official announcements difficult to understand and prefer plain, easy-to-understand language
</targetAudience>
<instruction>Describe a new update in <input></input> tags in bullet points to describe "What is the new feature", "Who is this update good for". Keep in mind your target audience specified in <targetAudience></targetAudience> tags - use plain language instead of complex technical jargon, focus on practical benefits, and make the content easily digestible for busy professionals who need to stay updated efficiently. Description shall be output in <thinking></thinking> tags and each thinking sentence must start with the bullet point "- " and end with "\n". Make final summary as per <summaryRule></summaryRule> tags. Try to shorten output for easy reading. You are not allowed to utilize any information except in the input. Output format shall be in accordance with <outputFormat></outputFormat> tags.</instruction>
<outputLanguage>In %s.</outputLanguage>
<summaryRule>The final summary must consists of 1 or 2 sentences and should be written in plain language that busy AWS practitioners can quickly understand. Output format is defined in <outputFormat></outputFormat> tags.</summaryRule>
<outputFormat><thinking>(bullet points of the input)</thinking><summary>(final summary)</summary></outputFormat>
Follow the instruction.
`
