package reward

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

func TestParsePlayerList(t *testing.T) {
	response := "0. Wreck, 0002a1b2c3d4e5f60718293a4b5c6d7e\n" +
		"1. Survivor Two, 000f0e0d0c0b0a090807060504030201\n"

	players := ParsePlayerList(response)
	require.Len(t, players, 2)
	assert.Equal(t, OnlinePlayer{Name: "Wreck", EOSID: "0002a1b2c3d4e5f60718293a4b5c6d7e"}, players[0])
	assert.Equal(t, "Survivor Two", players[1].Name)
}

func TestParsePlayerListEmptyServer(t *testing.T) {
	assert.Empty(t, ParsePlayerList("No Players Connected"))
	assert.Empty(t, ParsePlayerList(""))
	assert.Empty(t, ParsePlayerList("\n\n"))
}

func TestParsePlayerListSkipsMalformedLines(t *testing.T) {
	response := "garbage line without comma\n" +
		"0. Valid, 0002a1b2c3d4e5f60718293a4b5c6d7e\n" +
		"Name, notahexid\n"

	players := ParsePlayerList(response)
	require.Len(t, players, 1)
	assert.Equal(t, "Valid", players[0].Name)
}

type fakeExecutor struct {
	responses map[string]string
	err       error
	commands  []string
}

func (f *fakeExecutor) Execute(addr, password, command string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.commands = append(f.commands, command)
	return f.responses[addr], nil
}

func newRewardFixture(t *testing.T, executor *fakeExecutor, notify bool) (*Rewarder, *db.LedgerStore) {
	t.Helper()

	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ledger, err := db.NewLedgerStore(database)
	require.NoError(t, err)

	servers := func() []config.ServerEntry {
		return []config.ServerEntry{
			{Name: "island", Host: "127.0.0.1", Port: 27020, Password: "pw", Map: "TheIsland"},
		}
	}
	return NewRewarder(ledger, servers, executor, 10, time.Hour, notify), ledger
}

func TestRewardOnlineCreditsPlayers(t *testing.T) {
	executor := &fakeExecutor{responses: map[string]string{
		"127.0.0.1:27020": "0. Wreck, 0002a1b2c3d4e5f60718293a4b5c6d7e\n1. Other, 000f0e0d0c0b0a090807060504030201",
	}}
	rewarder, ledger := newRewardFixture(t, executor, false)

	credited := rewarder.RewardOnline()
	assert.Equal(t, 2, credited)

	balance, err := ledger.GetBalance("0002a1b2c3d4e5f60718293a4b5c6d7e")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	history, err := ledger.History("0002a1b2c3d4e5f60718293a4b5c6d7e", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "playtime:island", history[0].Source)
}

func TestRewardOnlineSendsNotice(t *testing.T) {
	executor := &fakeExecutor{responses: map[string]string{
		"127.0.0.1:27020": "0. Wreck, 0002a1b2c3d4e5f60718293a4b5c6d7e",
	}}
	rewarder, _ := newRewardFixture(t, executor, true)

	rewarder.RewardOnline()

	require.Len(t, executor.commands, 2)
	assert.Equal(t, "listplayers", executor.commands[0])
	assert.Contains(t, executor.commands[1], "ServerChat")
}

func TestRewardOnlineSkipsUnreachableServer(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("unreachable")}
	rewarder, _ := newRewardFixture(t, executor, false)

	assert.Equal(t, 0, rewarder.RewardOnline())
}

func TestRewardOnlineEmptyServerNoNotice(t *testing.T) {
	executor := &fakeExecutor{responses: map[string]string{
		"127.0.0.1:27020": "No Players Connected",
	}}
	rewarder, _ := newRewardFixture(t, executor, true)

	assert.Equal(t, 0, rewarder.RewardOnline())
	assert.Equal(t, []string{"listplayers"}, executor.commands)
}
