package notify

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretResolver 宛先の参照名を実際の webhook URL / トピック名へ解決する
type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// EnvResolver 環境変数から解決するデフォルト実装。
// 参照名 "/notifier/teams-webhook" は SECRET_NOTIFIER_TEAMS_WEBHOOK になる
type EnvResolver struct {
	Prefix string
}

func NewEnvResolver(prefix string) EnvResolver {
	if prefix == "" {
		prefix = "SECRET_"
	}
	return EnvResolver{Prefix: prefix}
}

func (r EnvResolver) Resolve(_ context.Context, name string) (string, error) {
	key := r.Prefix + normalizeSecretName(name)
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("secret %s not found (env %s)", name, key)
	}
	return v, nil
}

func normalizeSecretName(name string) string {
	name = strings.Trim(name, "/")
	var b strings.Builder
	for _, c := range strings.ToUpper(name) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
