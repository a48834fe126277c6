package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Transaction statuses recorded in the ledger.
const (
	StatusSuccess     = "Success"
	StatusQueued      = "Queued"
	StatusFailed      = "Failed"
	StatusManualRetry = "ManualRetry"
	StatusRefund      = "Refund"
)

// ErrInsufficientFunds is returned by Debit when the player's balance
// cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient points")

// ValidStatus reports whether status is one of the accepted transaction
// statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusSuccess, StatusQueued, StatusFailed, StatusManualRetry, StatusRefund:
		return true
	}
	return false
}

// Transaction is one row of the append-only point ledger. Points are
// positive for credits and negative for debits; a balance is only ever
// the sum of a player's rows.
type Transaction struct {
	ID        int64     `json:"id"`
	PlayerID  string    `json:"player_id"`
	Points    int       `json:"points"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// LeaderboardEntry is one player's aggregate balance.
type LeaderboardEntry struct {
	PlayerID string `json:"player_id"`
	Balance  int64  `json:"balance"`
}

// LedgerStore manages the append-only transactions table. Rows are never
// updated or deleted; corrections are compensating entries.
type LedgerStore struct {
	db *Database
}

// NewLedgerStore creates the store and ensures the schema exists.
func NewLedgerStore(database *Database) (*LedgerStore, error) {
	s := &LedgerStore{db: database}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return s, nil
}

func (s *LedgerStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id TEXT NOT NULL,
			points INTEGER NOT NULL,
			status TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_player
			ON transactions(player_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetBalance returns the sum of all ledger entries for a player. Unknown
// players have balance 0.
func (s *LedgerStore) GetBalance(playerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(
		"SELECT COALESCE(SUM(points), 0) FROM transactions WHERE player_id = ?",
		playerID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Credit appends a positive entry for the player.
func (s *LedgerStore) Credit(playerID string, points int, status, source string) error {
	if points <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", points)
	}
	_, err := s.db.Exec(
		"INSERT INTO transactions (player_id, points, status, source) VALUES (?, ?, ?, ?)",
		playerID, points, status, source,
	)
	if err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}
	log.Debug().Str("player", playerID).Int("points", points).Str("source", source).Msg("points credited")
	return nil
}

// Debit atomically checks the player's balance, appends a negative
// entry, and returns the post-debit balance. The check and insert share
// one transaction, so two concurrent debits can never overdraw the
// balance.
func (s *LedgerStore) Debit(playerID string, points int, source string) (int64, error) {
	if points <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", points)
	}

	var remaining int64
	err := s.db.Transaction(func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRow(
			"SELECT COALESCE(SUM(points), 0) FROM transactions WHERE player_id = ?",
			playerID,
		).Scan(&balance)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		if balance < int64(points) {
			return ErrInsufficientFunds
		}

		_, err = tx.Exec(
			"INSERT INTO transactions (player_id, points, status, source) VALUES (?, ?, ?, ?)",
			playerID, -points, StatusSuccess, source,
		)
		if err != nil {
			return fmt.Errorf("failed to debit points: %w", err)
		}
		remaining = balance - int64(points)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// Refund appends a compensating positive entry for an aborted purchase.
func (s *LedgerStore) Refund(playerID string, points int, reason string) error {
	if points <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", points)
	}
	_, err := s.db.Exec(
		"INSERT INTO transactions (player_id, points, status, source) VALUES (?, ?, ?, ?)",
		playerID, points, StatusRefund, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to refund points: %w", err)
	}
	log.Info().Str("player", playerID).Int("points", points).Str("reason", reason).Msg("points refunded")
	return nil
}

// Transfer atomically moves points from one player to another. The debit
// check and both inserts share one transaction.
func (s *LedgerStore) Transfer(fromID, toID string, points int) error {
	if points <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", points)
	}
	if fromID == toID {
		return fmt.Errorf("cannot transfer points to self")
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRow(
			"SELECT COALESCE(SUM(points), 0) FROM transactions WHERE player_id = ?",
			fromID,
		).Scan(&balance)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		if balance < int64(points) {
			return ErrInsufficientFunds
		}

		source := fmt.Sprintf("transfer:%s->%s", fromID, toID)
		if _, err := tx.Exec(
			"INSERT INTO transactions (player_id, points, status, source) VALUES (?, ?, ?, ?)",
			fromID, -points, StatusSuccess, source,
		); err != nil {
			return fmt.Errorf("failed to debit sender: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO transactions (player_id, points, status, source) VALUES (?, ?, ?, ?)",
			toID, points, StatusSuccess, source,
		); err != nil {
			return fmt.Errorf("failed to credit recipient: %w", err)
		}
		return nil
	})
}

// History returns the most recent ledger entries for a player, newest first.
func (s *LedgerStore) History(playerID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 25
	}

	rows, err := s.db.Query(
		`SELECT id, player_id, points, status, source, timestamp
		 FROM transactions WHERE player_id = ?
		 ORDER BY id DESC LIMIT ?`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Recent returns the most recent ledger entries across all players.
func (s *LedgerStore) Recent(limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, player_id, points, status, source, timestamp
		 FROM transactions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Leaderboard returns the top balances, highest first.
func (s *LedgerStore) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT player_id, SUM(points) AS balance
		 FROM transactions GROUP BY player_id
		 ORDER BY balance DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Balance); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.Points, &t.Status, &t.Source, &t.Timestamp); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
