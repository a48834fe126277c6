// Package reward implements the playtime reward loop: every interval,
// players online on any configured server are credited points.
package reward

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/util"
)

// Executor runs a command on a game server. Implemented by rcon.Manager.
type Executor interface {
	Execute(addr, password, command string) (string, error)
}

// OnlinePlayer is one entry parsed from a listplayers response.
type OnlinePlayer struct {
	Name  string
	EOSID string
}

// listplayers lines look like "0. SurvivorName, 0002abcdef...". The index
// prefix is optional across game versions.
var playerLine = regexp.MustCompile(`^(?:\d+\.\s*)?(.+?),\s*([0-9a-fA-F]{16,})$`)

// ParsePlayerList extracts online players from a listplayers response.
// "No Players Connected" and malformed lines are skipped.
func ParsePlayerList(response string) []OnlinePlayer {
	var players []OnlinePlayer
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "No Players") {
			continue
		}
		m := playerLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		players = append(players, OnlinePlayer{Name: strings.TrimSpace(m[1]), EOSID: m[2]})
	}
	return players
}

// Rewarder credits points to online players on a fixed interval.
type Rewarder struct {
	ledger   *db.LedgerStore
	servers  func() []config.ServerEntry
	executor Executor
	points   int
	interval time.Duration
	notify   bool
	logger   zerolog.Logger
}

// NewRewarder creates a rewarder. notify sends an in-game chat notice to
// each server after crediting.
func NewRewarder(ledger *db.LedgerStore, servers func() []config.ServerEntry, executor Executor, points int, interval time.Duration, notify bool) *Rewarder {
	if interval < time.Minute {
		interval = 30 * time.Minute
	}
	return &Rewarder{
		ledger:   ledger,
		servers:  servers,
		executor: executor,
		points:   points,
		interval: interval,
		notify:   notify,
		logger:   util.ComponentLogger("reward"),
	}
}

// Run executes the reward loop until the context is cancelled.
func (r *Rewarder) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Int("points", r.points).Msg("playtime rewards started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("playtime rewards stopped")
			return
		case <-ticker.C:
			r.RewardOnline()
		}
	}
}

// RewardOnline credits every player currently online across all servers.
// A player on two servers at once is credited once per server; playtime on
// each counts separately.
func (r *Rewarder) RewardOnline() int {
	if r.points <= 0 {
		return 0
	}

	credited := 0
	for _, server := range r.servers() {
		response, err := r.executor.Execute(server.Addr(), server.Password, "listplayers")
		if err != nil {
			r.logger.Warn().Err(err).Str("server", server.Name).Msg("listplayers failed, skipping server")
			continue
		}

		players := ParsePlayerList(response)
		for _, p := range players {
			source := fmt.Sprintf("playtime:%s", server.Name)
			if err := r.ledger.Credit(p.EOSID, r.points, db.StatusSuccess, source); err != nil {
				r.logger.Error().Err(err).Str("player", p.EOSID).Msg("failed to credit playtime reward")
				continue
			}
			credited++
		}

		if r.notify && len(players) > 0 {
			notice := fmt.Sprintf("ServerChat %d points awarded to all online survivors!", r.points)
			if _, err := r.executor.Execute(server.Addr(), server.Password, notice); err != nil {
				r.logger.Debug().Err(err).Str("server", server.Name).Msg("reward notice failed")
			}
		}
	}

	if credited > 0 {
		r.logger.Info().Int("players", credited).Int("points", r.points).Msg("playtime rewards credited")
	}
	return credited
}
