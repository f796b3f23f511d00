package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newsnotify/internal/notify"
)

// LogEvent 転送元のログ 1 行。Timestamp はエポックミリ秒
type LogEvent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// LogBatch ログ転送エンドポイントが受け取るバッチ
type LogBatch struct {
	LogGroup  string     `json:"logGroup"`
	LogStream string     `json:"logStream"`
	LogEvents []LogEvent `json:"logEvents"`
}

// alertBody トピックへ発行するメッセージ本体
type alertBody struct {
	LogGroup  string `json:"logGroup"`
	LogStream string `json:"logStream"`
	Message   string `json:"message"`
}

// Relay はログバッチから ERROR / FATAL 行だけを拾い、
// 発生元をメッセージ属性に載せてアラートトピックへ 1 行ずつ発行する
type Relay struct {
	topics *notify.TopicPublisher
	topic  string
	log    zerolog.Logger
}

func NewRelay(topics *notify.TopicPublisher, topic string, log zerolog.Logger) *Relay {
	return &Relay{topics: topics, topic: topic, log: log}
}

// Process バッチ内の該当行を発行し、発行できた件数を返す。
// 1 行の発行失敗は残りの行に波及させない
func (r *Relay) Process(ctx context.Context, batch LogBatch) (int, error) {
	published := 0
	var errs []error

	for _, ev := range batch.LogEvents {
		level, ok := matchLevel(ev.Message)
		if !ok {
			continue
		}

		body, err := json.Marshal(alertBody{
			LogGroup:  batch.LogGroup,
			LogStream: batch.LogStream,
			Message:   ev.Message,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		attrs := map[string]string{
			"level":         strings.ToLower(level),
			"severity":      level,
			"source-group":  batch.LogGroup,
			"source-stream": batch.LogStream,
			"event-id":      ev.ID,
			"event-time":    time.UnixMilli(ev.Timestamp).UTC().Format(time.RFC3339),
		}
		if err := r.topics.Publish(ctx, r.topic, body, attrs); err != nil {
			r.log.Error().Err(err).Str("event_id", ev.ID).Msg("alert publish failed")
			errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
			continue
		}
		published++
	}

	return published, errors.Join(errs...)
}

func matchLevel(msg string) (string, bool) {
	switch {
	case strings.Contains(msg, "FATAL"):
		return "FATAL", true
	case strings.Contains(msg, "ERROR"):
		return "ERROR", true
	default:
		return "", false
	}
}

