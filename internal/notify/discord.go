// Package notify pushes shop events to Discord via webhook: queued
// deliveries the operator may want to chase, RCON auth failures, and
// large point credits.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/util"
)

// DiscordNotifier sends webhook embeds for selected shop events.
type DiscordNotifier struct {
	cfg    *config.Config
	client *http.Client
	logger zerolog.Logger
}

// NewDiscordNotifier creates the notifier and subscribes it to the bus.
func NewDiscordNotifier(cfg *config.Config, bus *events.EventBus) *DiscordNotifier {
	n := &DiscordNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: util.ComponentLogger("notify"),
	}

	bus.Subscribe(events.EventPurchaseQueued, n.onPurchaseQueued)
	bus.Subscribe(events.EventRCONAuthFailure, n.onAuthFailure)
	bus.Subscribe(events.EventPointsCredited, n.onPointsCredited)
	bus.Subscribe(events.EventNotifyDiscordAdmin, n.onNotifyAdmin)

	return n
}

// Send posts one embed to the configured webhook. A missing webhook URL is
// not an error; notifications are optional.
func (n *DiscordNotifier) Send(ctx context.Context, title, message, level string) error {
	discordCfg := n.cfg.GetApplicationData().Discord
	if discordCfg.WebhookURL == "" {
		return nil
	}

	var color int
	switch level {
	case "error":
		color = 0xFF0000
	case "warning":
		color = 0xFFAA00
	default:
		color = 0x00FF00
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   time.Now().Format(time.RFC3339),
				"footer": map[string]string{
					"text": "WrecksShop",
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", discordCfg.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	n.logger.Debug().Str("title", title).Msg("Discord notification sent")
	return nil
}

func (n *DiscordNotifier) onPurchaseQueued(ev events.Event) {
	if !n.cfg.GetApplicationData().Discord.NotifyOnQueued {
		return
	}
	payload, ok := ev.Payload.(events.PurchasePayload)
	if !ok {
		return
	}

	msg := fmt.Sprintf("Delivery of **%s** for player `%s` on %s failed and was queued for retry.",
		payload.ItemName, payload.PlayerID, payload.MapName)
	n.send("Delivery queued", msg, "warning")
}

func (n *DiscordNotifier) onAuthFailure(ev events.Event) {
	if !n.cfg.GetApplicationData().Discord.NotifyOnAuth {
		return
	}
	payload, ok := ev.Payload.(events.RCONFailurePayload)
	if !ok {
		return
	}

	msg := fmt.Sprintf("RCON authentication rejected by **%s** (%s). Check the server password; deliveries are queuing until it is fixed.",
		payload.Server, payload.Addr)
	n.send("RCON auth failure", msg, "error")
}

func (n *DiscordNotifier) onPointsCredited(ev events.Event) {
	discordCfg := n.cfg.GetApplicationData().Discord
	if !discordCfg.NotifyOnCredit {
		return
	}
	payload, ok := ev.Payload.(events.LedgerPayload)
	if !ok {
		return
	}
	if payload.Points < discordCfg.LargeCreditMin {
		return
	}

	msg := fmt.Sprintf("Player `%s` was credited **%d** points (%s). New balance: %d.",
		payload.PlayerID, payload.Points, payload.Source, payload.Balance)
	n.send("Points credited", msg, "info")
}

func (n *DiscordNotifier) onNotifyAdmin(ev events.Event) {
	payload, ok := ev.Payload.(events.NotifyDiscordPayload)
	if !ok {
		return
	}
	n.send(payload.Title, payload.Message, payload.Level)
}

func (n *DiscordNotifier) send(title, message, level string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := n.Send(ctx, title, message, level); err != nil {
		n.logger.Warn().Err(err).Str("title", title).Msg("Discord notification failed")
	}
}
