package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsnotify/internal/config"
)

// mapResolver テスト用。参照名 → URL の固定マップ
type mapResolver map[string]string

func (r mapResolver) Resolve(_ context.Context, name string) (string, error) {
	v, ok := r[name]
	if !ok {
		return "", fmt.Errorf("secret %s not found", name)
	}
	return v, nil
}

func countingServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatchIsolatesDestinationFailures(t *testing.T) {
	var first, second, third atomic.Int32
	ok1 := countingServer(t, http.StatusOK, &first)
	bad := countingServer(t, http.StatusInternalServerError, &second)
	ok2 := countingServer(t, http.StatusOK, &third)

	resolver := mapResolver{
		"/dest/one":   ok1.URL,
		"/dest/two":   bad.URL,
		"/dest/three": ok2.URL,
	}
	d := NewDispatcher(resolver, NewWebhookClient(), nil, 0, zerolog.Nop())

	delivered, failed := d.Dispatch(context.Background(), sampleItem(), []config.Destination{
		{Variant: "chat-blocks", Transport: "url", ParameterName: "/dest/one"},
		{Variant: "chat-blocks", Transport: "url", ParameterName: "/dest/two"},
		{Variant: "chat-card", Transport: "url", ParameterName: "/dest/three"},
	})

	// 2 番目が 500 でも 1 番目・3 番目は届く
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Equal(t, int32(1), third.Load())
}

func TestDispatchUnknownVariantFailsWithoutPost(t *testing.T) {
	var hits atomic.Int32
	srv := countingServer(t, http.StatusOK, &hits)

	d := NewDispatcher(mapResolver{"/dest/one": srv.URL}, NewWebhookClient(), nil, 0, zerolog.Nop())
	delivered, failed := d.Dispatch(context.Background(), sampleItem(), []config.Destination{
		{Variant: "smoke-signal", Transport: "url", ParameterName: "/dest/one"},
	})

	assert.Equal(t, 0, delivered)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int32(0), hits.Load())
}

func TestDispatchTopicTransport(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, "downstream:items")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	d := NewDispatcher(
		mapResolver{"/dest/topic": "downstream:items"},
		NewWebhookClient(), NewTopicPublisher(rdb), 0, zerolog.Nop(),
	)
	delivered, failed := d.Dispatch(ctx, sampleItem(), []config.Destination{
		{Variant: "raw", Transport: "topic", ParameterName: "/dest/topic"},
	})
	require.Equal(t, 1, delivered)
	require.Equal(t, 0, failed)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env topicEnvelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))

	want, err := Format(VariantRaw, sampleItem())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(env.Message))
	assert.Empty(t, env.Attributes)
}

func TestDispatchPaceRespectsCancel(t *testing.T) {
	var hits atomic.Int32
	srv := countingServer(t, http.StatusOK, &hits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(mapResolver{"/dest/one": srv.URL}, NewWebhookClient(), nil, time.Hour, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		d.Dispatch(ctx, sampleItem(), []config.Destination{
			{Variant: "raw", Transport: "url", ParameterName: "/dest/one"},
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on pace delay after cancel")
	}
}

func TestEnvResolver(t *testing.T) {
	t.Setenv("SECRET_NOTIFIER_TEAMS_WEBHOOK", "https://example.com/hook")

	r := NewEnvResolver("")
	got, err := r.Resolve(context.Background(), "/notifier/teams-webhook")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", got)

	_, err = r.Resolve(context.Background(), "/notifier/missing")
	assert.Error(t, err)
}

func TestNormalizeSecretName(t *testing.T) {
	assert.Equal(t, "NOTIFIER_SLACK_HOOK", normalizeSecretName("/notifier/slack-hook/"))
	assert.Equal(t, "A_B_C", normalizeSecretName("a.b c"))
}
