// Package delivery implements the background redelivery sweep that retries
// queued purchases until they reach a game server.
package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/util"
)

// Executor runs a command on a game server. Implemented by rcon.Manager.
type Executor interface {
	Execute(addr, password, command string) (string, error)
}

// ServerProvider selects the game server hosting a given map.
type ServerProvider interface {
	ServerForMap(mapName string) (config.ServerEntry, bool)
}

// Sweeper periodically retries pending deliveries. The scheduled sweep and
// any manual trigger both go through RedeliverAll, which claims each row by
// CAS before touching the network, so a row is never delivered twice.
type Sweeper struct {
	queue    *db.DeliveryStore
	servers  ServerProvider
	executor Executor
	interval time.Duration
	bus      *events.EventBus
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper. Intervals below one second fall back to
// the 5 minute default.
func NewSweeper(queue *db.DeliveryStore, servers ServerProvider, executor Executor, interval time.Duration, bus *events.EventBus) *Sweeper {
	if interval < time.Second {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		queue:    queue,
		servers:  servers,
		executor: executor,
		interval: interval,
		bus:      bus,
		logger:   util.ComponentLogger("delivery"),
	}
}

// Run executes the sweep loop until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("redelivery sweep started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("redelivery sweep stopped")
			return
		case <-ticker.C:
			s.RedeliverAll()
		}
	}
}

// RedeliverAll retries every pending delivery once and returns how many
// were delivered. Safe to call concurrently with the scheduled sweep.
func (s *Sweeper) RedeliverAll() int {
	pending, err := s.queue.ListPending()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list pending deliveries")
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	start := time.Now()
	delivered := 0
	for _, d := range pending {
		if s.redeliver(d) {
			delivered++
		}
	}

	s.logger.Info().
		Int("attempted", len(pending)).
		Int("delivered", delivered).
		Msg("redelivery sweep completed")
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.EventSweepCompleted,
			Source: "delivery",
			Payload: events.SweepPayload{
				Attempted: len(pending),
				Delivered: delivered,
				Duration:  time.Since(start),
			},
		})
	}
	return delivered
}

// redeliver attempts one row. The claim must win before anything else
// happens; losing the claim means another worker has the row.
func (s *Sweeper) redeliver(d db.PendingDelivery) bool {
	claimed, err := s.queue.Claim(d.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", d.ID).Msg("failed to claim delivery")
		return false
	}
	if !claimed {
		return false
	}

	server, ok := s.servers.ServerForMap(d.Map)
	if !ok {
		s.logger.Warn().Int64("id", d.ID).Str("map", d.Map).Msg("no server for queued delivery, releasing")
		s.release(d.ID)
		return false
	}

	if _, err := s.executor.Execute(server.Addr(), server.Password, d.Command); err != nil {
		s.logger.Warn().Err(err).Int64("id", d.ID).Str("player", d.PlayerID).Msg("redelivery attempt failed")
		s.release(d.ID)
		return false
	}

	if err := s.queue.MarkDelivered(d.ID); err != nil {
		s.logger.Error().Err(err).Int64("id", d.ID).Msg("failed to mark delivery complete")
		return false
	}

	s.logger.Info().Int64("id", d.ID).Str("player", d.PlayerID).Str("item", d.ItemName).Msg("queued purchase delivered")
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.EventDeliveryCompleted,
			Source: "delivery",
			Payload: events.DeliveryPayload{
				DeliveryID: d.ID,
				PlayerID:   d.PlayerID,
				ItemName:   d.ItemName,
				Server:     server.Name,
			},
		})
	}
	return true
}

func (s *Sweeper) release(id int64) {
	if err := s.queue.Release(id); err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("failed to release delivery")
	}
}
