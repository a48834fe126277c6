// Package events defines event types and enumerations for the WrecksShop
// event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Purchase pipeline events
	EventPurchaseDelivered EventType = "purchase_delivered"
	EventPurchaseQueued    EventType = "purchase_queued"
	EventPurchaseRejected  EventType = "purchase_rejected"
	EventPurchaseRefunded  EventType = "purchase_refunded"

	// Delivery queue events
	EventDeliveryCompleted EventType = "delivery_completed"
	EventSweepCompleted    EventType = "sweep_completed"

	// Ledger events
	EventPointsCredited EventType = "points_credited"
	EventPointsDebited  EventType = "points_debited"

	// RCON events
	EventRCONAuthFailure EventType = "rcon_auth_failure"
	EventRCONUnreachable EventType = "rcon_unreachable"

	// Notification events
	EventNotifyDiscordAdmin EventType = "notify_discord_admin"
	EventNotifyMQTT         EventType = "notify_mqtt"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// Event is the envelope published through the EventBus.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// PurchasePayload describes the outcome of a purchase attempt.
type PurchasePayload struct {
	PlayerID  string `json:"player_id"`
	ItemName  string `json:"item_name"`
	MapName   string `json:"map"`
	Server    string `json:"server"`
	Price     int    `json:"price"`
	Balance   int64  `json:"balance"`
	Reason    string `json:"reason,omitempty"`
}

// DeliveryPayload describes a queued-delivery state change.
type DeliveryPayload struct {
	DeliveryID int64  `json:"delivery_id"`
	PlayerID   string `json:"player_id"`
	ItemName   string `json:"item_name"`
	Server     string `json:"server"`
}

// SweepPayload summarizes one redelivery sweep run.
type SweepPayload struct {
	Attempted int           `json:"attempted"`
	Delivered int           `json:"delivered"`
	Duration  time.Duration `json:"duration"`
}

// LedgerPayload describes a ledger credit or debit.
type LedgerPayload struct {
	PlayerID string `json:"player_id"`
	Points   int    `json:"points"`
	Status   string `json:"status"`
	Source   string `json:"source"`
	Balance  int64  `json:"balance"`
}

// RCONFailurePayload describes an RCON-level failure for one server.
type RCONFailurePayload struct {
	Server string `json:"server"`
	Addr   string `json:"addr"`
	Err    string `json:"error"`
}

// NotifyDiscordPayload carries an admin notification request.
type NotifyDiscordPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
}
