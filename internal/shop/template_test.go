package shop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCommand(t *testing.T) {
	cmd, err := ResolveCommand(
		`GiveItemToPlayer {eos_id} "Blueprint'/Stone.Stone'" {quantity} 0 0`,
		"discord-1", "eos-abc", "TheIsland", 50,
	)
	require.NoError(t, err)
	assert.Equal(t, `GiveItemToPlayer eos-abc "Blueprint'/Stone.Stone'" 50 0 0`, cmd)
}

func TestResolveCommandAllPlaceholders(t *testing.T) {
	cmd, err := ResolveCommand("{player_id} {eos_id} {map} {quantity}", "d1", "e1", "Ragnarok", 2)
	require.NoError(t, err)
	assert.Equal(t, "d1 e1 Ragnarok 2", cmd)
}

func TestResolveCommandUnresolvedPlaceholder(t *testing.T) {
	_, err := ResolveCommand("GiveItem {tribe_id}", "d1", "e1", "TheIsland", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{tribe_id}")
}
