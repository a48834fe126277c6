package shop

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogJSON = `{
	"categories": [
		{
			"name": "Resources",
			"items": [
				{"name": "Stone", "price": 5, "command_template": "GiveItemToPlayer {eos_id} Stone {quantity} 0 0", "enabled": true},
				{"name": "Metal Ingot", "price": 20, "command_template": "GiveItemToPlayer {eos_id} Metal {quantity} 0 0", "enabled": true}
			]
		},
		{
			"name": "Dinos",
			"items": [
				{"name": "Rex", "price": 500, "command_template": "SpawnDino {eos_id} Rex", "map": "TheIsland", "enabled": false}
			]
		}
	]
}`

func writeTestCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCatalogLoad(t *testing.T) {
	catalog, err := LoadCatalog(writeTestCatalog(t, testCatalogJSON))
	require.NoError(t, err)

	assert.Len(t, catalog.Items(), 3)
	assert.Equal(t, []string{"Resources", "Dinos"}, catalog.Categories())

	item, ok := catalog.Find("metal ingot")
	require.True(t, ok)
	assert.Equal(t, "Metal Ingot", item.Name)
	assert.Equal(t, "Resources", item.Category)
	assert.Equal(t, 1, item.Quantity)

	rex, ok := catalog.Find("Rex")
	require.True(t, ok)
	assert.False(t, rex.Enabled)
	assert.Equal(t, "TheIsland", rex.Map)
}

func TestCatalogMissingFileStartsEmpty(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, catalog.Items())

	_, ok := catalog.Find("Stone")
	assert.False(t, ok)
}

func TestCatalogRejectsMalformedJSON(t *testing.T) {
	_, err := LoadCatalog(writeTestCatalog(t, "{not json"))
	assert.Error(t, err)
}

func TestCatalogReload(t *testing.T) {
	path := writeTestCatalog(t, testCatalogJSON)
	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog.Items(), 3)

	updated := `{"categories": [{"name": "Resources", "items": [
		{"name": "Stone", "price": 10, "command_template": "cmd", "enabled": true}
	]}]}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))
	require.NoError(t, catalog.Reload())

	assert.Len(t, catalog.Items(), 1)
	item, _ := catalog.Find("Stone")
	assert.Equal(t, 10, item.Price)
}
