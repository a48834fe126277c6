package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotLinked is returned when a Discord account has no stored EOS id.
var ErrNotLinked = errors.New("player not linked")

// PlayerLink maps a Discord account to the EOS id Ark servers know the
// player by.
type PlayerLink struct {
	DiscordID string    `json:"discord_id"`
	EOSID     string    `json:"eos_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PlayerStore manages Discord-to-EOS identity links.
type PlayerStore struct {
	db *Database
}

// NewPlayerStore creates the store and ensures the schema exists.
func NewPlayerStore(database *Database) (*PlayerStore, error) {
	s := &PlayerStore{db: database}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate player schema: %w", err)
	}
	return s, nil
}

func (s *PlayerStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS player_links (
			discord_id TEXT PRIMARY KEY,
			eos_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Link stores or replaces the EOS id for a Discord account.
func (s *PlayerStore) Link(discordID, eosID string) error {
	if discordID == "" || eosID == "" {
		return fmt.Errorf("discord id and eos id are required")
	}
	_, err := s.db.Exec(
		`INSERT INTO player_links (discord_id, eos_id) VALUES (?, ?)
		 ON CONFLICT(discord_id) DO UPDATE SET eos_id = excluded.eos_id`,
		discordID, eosID,
	)
	if err != nil {
		return fmt.Errorf("failed to link player: %w", err)
	}
	return nil
}

// Resolve returns the EOS id linked to a Discord account.
func (s *PlayerStore) Resolve(discordID string) (string, error) {
	var eosID string
	err := s.db.QueryRow(
		"SELECT eos_id FROM player_links WHERE discord_id = ?",
		discordID,
	).Scan(&eosID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotLinked
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve player link: %w", err)
	}
	return eosID, nil
}

// All returns every stored link.
func (s *PlayerStore) All() ([]PlayerLink, error) {
	rows, err := s.db.Query(
		"SELECT discord_id, eos_id, created_at FROM player_links ORDER BY created_at",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list player links: %w", err)
	}
	defer rows.Close()

	var links []PlayerLink
	for rows.Next() {
		var l PlayerLink
		if err := rows.Scan(&l.DiscordID, &l.EOSID, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
