package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeliveries(t *testing.T) *DeliveryStore {
	t.Helper()

	store, err := NewDeliveryStore(newTestDatabase(t))
	require.NoError(t, err)
	return store
}

func TestDeliveryQueueAndList(t *testing.T) {
	store := newTestDeliveries(t)

	id, err := store.Queue("alice", "Rex Saddle", `GiveItemToPlayer 000123 "Saddle" 1 0 0`, "TheIsland", 50)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	pending, err := store.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].PlayerID)
	assert.Equal(t, "Rex Saddle", pending[0].ItemName)
	assert.Equal(t, DeliveryPending, pending[0].Status)
	assert.Equal(t, 50, pending[0].Price)
}

func TestDeliveryClaimIsExclusive(t *testing.T) {
	store := newTestDeliveries(t)

	id, err := store.Queue("bob", "Stone", "cmd", "Ragnarok", 5)
	require.NoError(t, err)

	claimed, err := store.Claim(id)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim on the same row must lose the race.
	claimed, err = store.Claim(id)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestDeliveryDeliveredIsTerminal(t *testing.T) {
	store := newTestDeliveries(t)

	id, err := store.Queue("carol", "Element", "cmd", "TheIsland", 100)
	require.NoError(t, err)

	claimed, err := store.Claim(id)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.MarkDelivered(id))

	// Marking again is a no-op and never resurrects the row.
	require.NoError(t, store.MarkDelivered(id))

	d, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, d.Status)

	claimed, err = store.Claim(id)
	require.NoError(t, err)
	assert.False(t, claimed)

	count, err := store.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDeliveryReleaseReturnsToPending(t *testing.T) {
	store := newTestDeliveries(t)

	id, err := store.Queue("dave", "Metal", "cmd", "TheIsland", 10)
	require.NoError(t, err)

	claimed, err := store.Claim(id)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.Release(id))

	claimed, err = store.Claim(id)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDeliveryStuckRowsReleasedOnStartup(t *testing.T) {
	database := newTestDatabase(t)

	store, err := NewDeliveryStore(database)
	require.NoError(t, err)

	id, err := store.Queue("eve", "Flint", "cmd", "TheIsland", 2)
	require.NoError(t, err)
	claimed, err := store.Claim(id)
	require.NoError(t, err)
	require.True(t, claimed)

	// Simulate restart: a fresh store over the same database releases
	// the in-progress row.
	store2, err := NewDeliveryStore(database)
	require.NoError(t, err)

	pending, err := store2.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
}
