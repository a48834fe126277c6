// Package telemetry publishes shop activity to an MQTT broker for
// external dashboards.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/util"
)

// MQTT topics
const (
	TopicPurchase = "shop/purchase"
	TopicDelivery = "shop/delivery"
	TopicLedger   = "shop/ledger"
	TopicAlert    = "shop/alert"
	TopicStatus   = "shop/status"
)

// MQTTHandler manages the MQTT connection and publishes shop events.
type MQTTHandler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates the telemetry handler. Returns an error when
// MQTT is disabled in configuration.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":    sysInfo.Hostname,
		"platform":    sysInfo.OS,
		"app_version": "1.0.0",
	}

	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: metadata,
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("wrecksshop-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

// Start connects to the broker, subscribes to shop events, and blocks
// until the context is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	mqttCfg := h.cfg.GetApplicationData().MQTT
	log.Info().
		Str("broker", mqttCfg.BrokerURL).
		Int("port", mqttCfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.publishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventPurchaseDelivered, h.onPurchase("delivered"))
	h.eventBus.Subscribe(events.EventPurchaseQueued, h.onPurchase("queued"))
	h.eventBus.Subscribe(events.EventPurchaseRefunded, h.onPurchase("refunded"))
	h.eventBus.Subscribe(events.EventDeliveryCompleted, h.onDelivery)
	h.eventBus.Subscribe(events.EventSweepCompleted, h.onSweep)
	h.eventBus.Subscribe(events.EventPointsCredited, h.onLedger)
	h.eventBus.Subscribe(events.EventRCONAuthFailure, h.onAlert)
	h.eventBus.Subscribe(events.EventNotifyMQTT, h.onNotify)
}

// publish sends a JSON message to an MQTT topic at QoS 1.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{})
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

func (h *MQTTHandler) onPurchase(outcome string) events.Handler {
	return func(ev events.Event) {
		h.publish(TopicPurchase, map[string]interface{}{
			"outcome": outcome,
			"payload": ev.Payload,
		})
	}
}

func (h *MQTTHandler) onDelivery(ev events.Event) {
	h.publish(TopicDelivery, map[string]interface{}{
		"event":   "redelivered",
		"payload": ev.Payload,
	})
}

func (h *MQTTHandler) onSweep(ev events.Event) {
	h.publish(TopicDelivery, map[string]interface{}{
		"event":   "sweep_completed",
		"payload": ev.Payload,
	})
}

func (h *MQTTHandler) onLedger(ev events.Event) {
	h.publish(TopicLedger, ev.Payload)
}

func (h *MQTTHandler) onAlert(ev events.Event) {
	h.publish(TopicAlert, map[string]interface{}{
		"event":   string(ev.Type),
		"payload": ev.Payload,
	})
}

func (h *MQTTHandler) onNotify(ev events.Event) {
	h.publish(TopicStatus, ev.Payload)
}

func (h *MQTTHandler) publishShutdown() {
	h.publish(TopicStatus, map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
