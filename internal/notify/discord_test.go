package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/events"
)

func newNotifyFixture(t *testing.T, webhookURL string) *DiscordNotifier {
	t.Helper()

	cfg := config.DefaultConfig()
	app := cfg.GetApplicationData()
	app.Discord.WebhookURL = webhookURL
	app.Discord.NotifyOnQueued = true
	app.Discord.NotifyOnAuth = true
	cfg.SetApplicationData(app)

	return NewDiscordNotifier(cfg, events.NewEventBus())
}

func TestSendPostsEmbed(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := newNotifyFixture(t, server.URL)
	require.NoError(t, n.Send(context.Background(), "Delivery queued", "details", "warning"))

	embeds, ok := received["embeds"].([]interface{})
	require.True(t, ok)
	require.Len(t, embeds, 1)

	embed := embeds[0].(map[string]interface{})
	assert.Equal(t, "Delivery queued", embed["title"])
	assert.Equal(t, "details", embed["description"])
	assert.Equal(t, float64(0xFFAA00), embed["color"])
}

func TestSendWithoutWebhookIsNoop(t *testing.T) {
	n := newNotifyFixture(t, "")
	assert.NoError(t, n.Send(context.Background(), "t", "m", "info"))
}

func TestSendSurfacesWebhookErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	n := newNotifyFixture(t, server.URL)
	err := n.Send(context.Background(), "t", "m", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
