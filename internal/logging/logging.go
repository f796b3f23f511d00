package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New プロセス共通の zerolog ロガーを生成する。
// 各コンポーネントは With().Str("component", ...) で子ロガーを作る
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
