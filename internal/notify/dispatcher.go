package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"newsnotify/internal/config"
	"newsnotify/internal/enrich"
)

// Dispatcher は 1 記事を設定順どおりに各宛先へ送る。
// 宛先は直列処理で、送信のたびに pace だけ待つ（webhook 側のレート制限対策）。
// 1 宛先の失敗は残りの宛先にもストアにも影響しない
type Dispatcher struct {
	secrets  SecretResolver
	webhooks *WebhookClient
	topics   *TopicPublisher
	pace     time.Duration
	log      zerolog.Logger
}

func NewDispatcher(secrets SecretResolver, webhooks *WebhookClient, topics *TopicPublisher, pace time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		secrets:  secrets,
		webhooks: webhooks,
		topics:   topics,
		pace:     pace,
		log:      log,
	}
}

// Dispatch 全宛先への送信を試み、成功数と失敗数を返す
func (d *Dispatcher) Dispatch(ctx context.Context, item enrich.EnrichedEntry, dests []config.Destination) (delivered, failed int) {
	for _, dest := range dests {
		if err := d.deliver(ctx, item, dest); err != nil {
			failed++
			d.log.Error().Err(err).
				Str("url", item.URL).
				Str("variant", dest.Variant).
				Str("parameter", dest.ParameterName).
				Msg("delivery failed")
		} else {
			delivered++
			d.log.Info().
				Str("url", item.URL).
				Str("variant", dest.Variant).
				Msg("delivered")
		}
		// 成否に関わらず次の宛先まで間隔を空ける
		d.pause(ctx)
	}
	return delivered, failed
}

func (d *Dispatcher) deliver(ctx context.Context, item enrich.EnrichedEntry, dest config.Destination) error {
	endpoint, err := d.secrets.Resolve(ctx, dest.ParameterName)
	if err != nil {
		return err
	}

	payload, err := Format(Variant(dest.Variant), item)
	if err != nil {
		return err
	}

	switch dest.Transport {
	case TransportTopic:
		return d.topics.Publish(ctx, endpoint, payload, nil)
	default: // url
		return d.webhooks.Post(ctx, endpoint, payload)
	}
}

func (d *Dispatcher) pause(ctx context.Context) {
	if d.pace <= 0 {
		return
	}
	select {
	case <-time.After(d.pace):
	case <-ctx.Done():
	}
}
