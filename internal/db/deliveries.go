package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Delivery queue statuses. A delivery moves pending -> in_progress ->
// delivered, or back to pending when the attempt fails. delivered is
// terminal.
const (
	DeliveryPending    = "pending"
	DeliveryInProgress = "in_progress"
	DeliveryDelivered  = "delivered"
)

// PendingDelivery is a purchase whose in-game delivery has not completed.
// The resolved command is stored verbatim so redelivery never re-resolves
// templates against changed catalog data.
type PendingDelivery struct {
	ID        int64     `json:"id"`
	PlayerID  string    `json:"player_id"`
	ItemName  string    `json:"item_name"`
	Command   string    `json:"command"`
	Map       string    `json:"map"`
	Price     int       `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryStore manages the pending_deliveries queue.
type DeliveryStore struct {
	db *Database
}

// NewDeliveryStore creates the store and ensures the schema exists. Any
// rows stuck in_progress from a previous unclean shutdown are released
// back to pending.
func NewDeliveryStore(database *Database) (*DeliveryStore, error) {
	s := &DeliveryStore{db: database}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate delivery schema: %w", err)
	}

	released, err := s.releaseStuck()
	if err != nil {
		return nil, err
	}
	if released > 0 {
		log.Warn().Int64("count", released).Msg("released in-progress deliveries from previous run")
	}
	return s, nil
}

func (s *DeliveryStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pending_deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			command TEXT NOT NULL,
			map TEXT NOT NULL DEFAULT '',
			price INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_status
			ON pending_deliveries(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *DeliveryStore) releaseStuck() (int64, error) {
	res, err := s.db.Exec(
		"UPDATE pending_deliveries SET status = ? WHERE status = ?",
		DeliveryPending, DeliveryInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stuck deliveries: %w", err)
	}
	return res.RowsAffected()
}

// Queue records a failed delivery for later retry.
func (s *DeliveryStore) Queue(playerID, itemName, command, mapName string, price int) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO pending_deliveries (player_id, item_name, command, map, price, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		playerID, itemName, command, mapName, price, DeliveryPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to queue delivery: %w", err)
	}

	id, _ := res.LastInsertId()
	log.Info().Int64("id", id).Str("player", playerID).Str("item", itemName).Msg("delivery queued")
	return id, nil
}

// Claim atomically transitions a delivery from pending to in_progress.
// Returns false if another worker already claimed it or it was delivered.
func (s *DeliveryStore) Claim(id int64) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE pending_deliveries SET status = ? WHERE id = ? AND status = ?",
		DeliveryInProgress, id, DeliveryPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkDelivered moves a delivery to its terminal state. Marking an
// already-delivered row is a no-op.
func (s *DeliveryStore) MarkDelivered(id int64) error {
	_, err := s.db.Exec(
		"UPDATE pending_deliveries SET status = ? WHERE id = ? AND status != ?",
		DeliveryDelivered, id, DeliveryDelivered,
	)
	if err != nil {
		return fmt.Errorf("failed to mark delivery %d: %w", id, err)
	}
	return nil
}

// Release returns a claimed delivery to pending after a failed attempt.
func (s *DeliveryStore) Release(id int64) error {
	_, err := s.db.Exec(
		"UPDATE pending_deliveries SET status = ? WHERE id = ? AND status = ?",
		DeliveryPending, id, DeliveryInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to release delivery %d: %w", id, err)
	}
	return nil
}

// ListPending returns all deliveries awaiting retry, oldest first.
func (s *DeliveryStore) ListPending() ([]PendingDelivery, error) {
	rows, err := s.db.Query(
		`SELECT id, player_id, item_name, command, map, price, status, created_at
		 FROM pending_deliveries WHERE status = ? ORDER BY id`,
		DeliveryPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []PendingDelivery
	for rows.Next() {
		var d PendingDelivery
		if err := rows.Scan(&d.ID, &d.PlayerID, &d.ItemName, &d.Command, &d.Map, &d.Price, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// Get returns a single delivery by id.
func (s *DeliveryStore) Get(id int64) (PendingDelivery, error) {
	var d PendingDelivery
	err := s.db.QueryRow(
		`SELECT id, player_id, item_name, command, map, price, status, created_at
		 FROM pending_deliveries WHERE id = ?`,
		id,
	).Scan(&d.ID, &d.PlayerID, &d.ItemName, &d.Command, &d.Map, &d.Price, &d.Status, &d.CreatedAt)
	if err != nil {
		return PendingDelivery{}, fmt.Errorf("failed to load delivery %d: %w", id, err)
	}
	return d, nil
}

// CountPending returns the number of deliveries waiting for retry.
func (s *DeliveryStore) CountPending() (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pending_deliveries WHERE status = ?",
		DeliveryPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending deliveries: %w", err)
	}
	return count, nil
}
