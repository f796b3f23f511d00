package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	defaultMaxOldDays    = 7
	defaultPromptVersion = "v1"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	// 巡回間隔。notifier 側で cronSpec が指定されていない場合のデフォルト
	CronSpec string

	// INSERT 変更レコードを流す Redis チャンネル
	ChangeChannel string
	// エラーログ転送先トピック
	AlertTopic string

	// 宛先ごとの送信間隔（レート制限対策）
	PaceDelay time.Duration

	LogLevel     string
	SecretPrefix string

	Summary SummaryAPIConfig

	Notifiers   map[string]Notifier
	Summarizers map[string]Summarizer
}

// SummaryAPIConfig 要約 API（messages 互換）の接続情報
type SummaryAPIConfig struct {
	Endpoint string
	Model    string
	APIKey   string
}

// Notifier はフィード巡回と通知先をまとめた設定単位。
// 環境変数 NOTIFIERS に JSON で渡す
type Notifier struct {
	RSSURL         map[string]string `json:"rssUrl"`
	MaxOldDays     int               `json:"maxOldDays"`
	SummarizerName string            `json:"summarizerName"`
	PromptVersion  string            `json:"promptVersion"`
	CronSpec       string            `json:"cronSpec"`
	Destinations   []Destination     `json:"destinations"`
}

// Destination 通知先 1 件分。variant はメッセージ形式、transport は配送方式
type Destination struct {
	// chat-card / chat-blocks / raw
	Variant string `json:"variant"`
	// url（webhook POST）/ topic（pub/sub publish）
	Transport string `json:"transport"`
	// SecretResolver で実際の URL / トピック名に解決する参照名
	ParameterName string `json:"parameterName"`
}

// Summarizer 要約の出力言語とペルソナ
type Summarizer struct {
	OutputLanguage string `json:"outputLanguage"`
	Persona        string `json:"persona"`
}

func Load() (*Config, error) {
	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		PostgresDSN:   getEnv("POSTGRES_DSN", "host=localhost user=newsnotify password=newsnotify dbname=newsnotify port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		CronSpec:      getEnv("CRON_SPEC", "*/30 * * * *"),
		ChangeChannel: getEnv("CHANGE_CHANNEL", "entries:changes"),
		AlertTopic:    getEnv("ALERT_TOPIC", "alerts:errors"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SecretPrefix:  getEnv("SECRET_PREFIX", "SECRET_"),
		Summary: SummaryAPIConfig{
			Endpoint: getEnv("SUMMARY_API_ENDPOINT", ""),
			Model:    getEnv("SUMMARY_API_MODEL", ""),
			APIKey:   getEnv("SUMMARY_API_KEY", ""),
		},
	}

	pace := getEnv("PACE_DELAY", "500ms")
	d, err := time.ParseDuration(pace)
	if err != nil {
		return nil, fmt.Errorf("config: invalid PACE_DELAY %q: %w", pace, err)
	}
	cfg.PaceDelay = d

	if raw := os.Getenv("NOTIFIERS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Notifiers); err != nil {
			return nil, fmt.Errorf("config: parse NOTIFIERS: %w", err)
		}
	}
	if raw := os.Getenv("SUMMARIZERS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Summarizers); err != nil {
			return nil, fmt.Errorf("config: parse SUMMARIZERS: %w", err)
		}
	}

	// notifier 側の省略値を埋める
	for name, n := range cfg.Notifiers {
		if n.MaxOldDays <= 0 {
			n.MaxOldDays = defaultMaxOldDays
		}
		if n.PromptVersion == "" {
			n.PromptVersion = defaultPromptVersion
		}
		cfg.Notifiers[name] = n
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
