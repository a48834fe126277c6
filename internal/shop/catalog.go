// Package shop implements the shop catalog and the purchase orchestrator
// that validates, debits, and delivers item purchases.
package shop

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bebewat/wrecksshop-main/internal/util"
)

// ShopItem is one purchasable entry in the catalog. CommandTemplate is the
// RCON command with {player_id}/{eos_id}/{map}/{quantity} placeholders.
type ShopItem struct {
	Name            string `json:"name"`
	Price           int    `json:"price"`
	CommandTemplate string `json:"command_template"`
	Category        string `json:"category,omitempty"`
	Map             string `json:"map,omitempty"`
	Quantity        int    `json:"quantity,omitempty"`
	Enabled         bool   `json:"enabled"`
	Description     string `json:"description,omitempty"`
}

// ItemProvider supplies shop items to the orchestrator and API.
type ItemProvider interface {
	Items() []ShopItem
	Find(name string) (ShopItem, bool)
}

type catalogCategory struct {
	Name  string     `json:"name"`
	Items []ShopItem `json:"items"`
}

type catalogFile struct {
	Categories []catalogCategory `json:"categories"`
}

// Catalog is a file-backed ItemProvider. The JSON file groups items by
// category; Reload swaps the whole item set atomically.
type Catalog struct {
	mu     sync.RWMutex
	path   string
	items  []ShopItem
	byName map[string]ShopItem
	logger zerolog.Logger
}

// LoadCatalog reads the catalog file at path. A missing file yields an
// empty catalog rather than an error so a fresh install can start clean.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		byName: make(map[string]ShopItem),
		logger: util.ComponentLogger("catalog"),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file and replaces the item set.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.logger.Warn().Str("path", c.path).Msg("catalog file missing, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read catalog %s: %w", c.path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse catalog %s: %w", c.path, err)
	}

	var items []ShopItem
	byName := make(map[string]ShopItem)
	for _, cat := range file.Categories {
		for _, item := range cat.Items {
			if item.Name == "" {
				continue
			}
			if item.Category == "" {
				item.Category = cat.Name
			}
			if item.Quantity <= 0 {
				item.Quantity = 1
			}
			items = append(items, item)
			byName[strings.ToLower(item.Name)] = item
		}
	}

	c.mu.Lock()
	c.items = items
	c.byName = byName
	c.mu.Unlock()

	c.logger.Info().Int("items", len(items)).Int("categories", len(file.Categories)).Msg("catalog loaded")
	return nil
}

// Items returns a copy of every catalog entry.
func (c *Catalog) Items() []ShopItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ShopItem, len(c.items))
	copy(out, c.items)
	return out
}

// Find looks up an item by name, case-insensitively.
func (c *Catalog) Find(name string) (ShopItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.byName[strings.ToLower(name)]
	return item, ok
}

// Categories returns the distinct category names in catalog order.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for _, item := range c.items {
		if !seen[item.Category] {
			seen[item.Category] = true
			names = append(names, item.Category)
		}
	}
	return names
}
