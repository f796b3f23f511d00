package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Transport 種別。Destination 設定の transport フィールドに対応
const (
	TransportWebhook = "url"
	TransportTopic   = "topic"
)

// WebhookClient JSON ペイロードを webhook URL へ POST する
type WebhookClient struct {
	http *http.Client
}

func NewWebhookClient() *WebhookClient {
	return &WebhookClient{http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WebhookClient) Post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

// TopicPublisher 名前付きトピック（Redis チャンネル）へメッセージを発行する。
// Redis のメッセージにはメタデータが付けられないため、
// 属性は {message, attributes} のエンベロープで運ぶ
type TopicPublisher struct {
	rdb *redis.Client
}

func NewTopicPublisher(rdb *redis.Client) *TopicPublisher {
	return &TopicPublisher{rdb: rdb}
}

type topicEnvelope struct {
	Message    json.RawMessage   `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (p *TopicPublisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) error {
	env, err := json.Marshal(topicEnvelope{Message: payload, Attributes: attrs})
	if err != nil {
		return fmt.Errorf("marshal topic envelope: %w", err)
	}
	if err := p.rdb.Publish(ctx, topic, env).Err(); err != nil {
		return fmt.Errorf("publish to topic %s: %w", topic, err)
	}
	return nil
}
