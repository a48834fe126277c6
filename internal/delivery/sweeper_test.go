package delivery

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
)

type fakeExecutor struct {
	err      error
	commands []string
}

func (f *fakeExecutor) Execute(addr, password, command string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.commands = append(f.commands, command)
	return "ok", nil
}

type staticServers struct{}

func (staticServers) ServerForMap(mapName string) (config.ServerEntry, bool) {
	if mapName == "TheIsland" {
		return config.ServerEntry{Name: "island", Host: "127.0.0.1", Port: 27020, Password: "pw", Map: "TheIsland"}, true
	}
	return config.ServerEntry{}, false
}

func newSweeperFixture(t *testing.T) (*Sweeper, *db.DeliveryStore, *fakeExecutor) {
	t.Helper()

	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	queue, err := db.NewDeliveryStore(database)
	require.NoError(t, err)

	executor := &fakeExecutor{}
	sweeper := NewSweeper(queue, staticServers{}, executor, time.Minute, nil)
	return sweeper, queue, executor
}

func TestRedeliverAllDeliversPending(t *testing.T) {
	sweeper, queue, executor := newSweeperFixture(t)

	id1, err := queue.Queue("alice", "Stone", "give stone", "TheIsland", 5)
	require.NoError(t, err)
	id2, err := queue.Queue("bob", "Metal", "give metal", "TheIsland", 20)
	require.NoError(t, err)

	delivered := sweeper.RedeliverAll()
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"give stone", "give metal"}, executor.commands)

	for _, id := range []int64{id1, id2} {
		d, err := queue.Get(id)
		require.NoError(t, err)
		assert.Equal(t, db.DeliveryDelivered, d.Status)
	}
}

func TestRedeliverAllReleasesOnFailure(t *testing.T) {
	sweeper, queue, executor := newSweeperFixture(t)
	executor.err = errors.New("server unreachable")

	id, err := queue.Queue("alice", "Stone", "give stone", "TheIsland", 5)
	require.NoError(t, err)

	delivered := sweeper.RedeliverAll()
	assert.Equal(t, 0, delivered)

	// The row must be pending again for the next sweep.
	d, err := queue.Get(id)
	require.NoError(t, err)
	assert.Equal(t, db.DeliveryPending, d.Status)

	executor.err = nil
	assert.Equal(t, 1, sweeper.RedeliverAll())
}

func TestRedeliverAllSkipsUnknownMap(t *testing.T) {
	sweeper, queue, _ := newSweeperFixture(t)

	id, err := queue.Queue("alice", "Stone", "give stone", "Aberration", 5)
	require.NoError(t, err)

	assert.Equal(t, 0, sweeper.RedeliverAll())

	d, err := queue.Get(id)
	require.NoError(t, err)
	assert.Equal(t, db.DeliveryPending, d.Status)
}

func TestRedeliveredRowStaysDelivered(t *testing.T) {
	sweeper, queue, executor := newSweeperFixture(t)

	id, err := queue.Queue("alice", "Stone", "give stone", "TheIsland", 5)
	require.NoError(t, err)

	require.Equal(t, 1, sweeper.RedeliverAll())
	// A second sweep finds nothing: delivered is terminal.
	require.Equal(t, 0, sweeper.RedeliverAll())
	assert.Len(t, executor.commands, 1)

	d, err := queue.Get(id)
	require.NoError(t, err)
	assert.Equal(t, db.DeliveryDelivered, d.Status)
}
