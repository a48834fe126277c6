package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.ShopData.Servers = []ServerEntry{
		{Name: "island", Host: "127.0.0.1", Port: 27020, Password: "pw", Map: "TheIsland"},
	}
	return cfg
}

func TestValidateAcceptsDefaultConfigWithServer(t *testing.T) {
	result := Validate(validConfig())
	assert.True(t, result.IsValid(), "errors: %v", result.Errors)
}

func TestValidateRequiresServers(t *testing.T) {
	cfg := DefaultConfig()
	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateDiscountBounds(t *testing.T) {
	cfg := validConfig()
	cfg.ShopData.Discounts = map[string]float64{"vip": 50}
	assert.True(t, Validate(cfg).IsValid())

	cfg.ShopData.Discounts = map[string]float64{"vip": 150}
	result := Validate(cfg)
	require.False(t, result.IsValid())
	assert.Equal(t, "shop_data.discounts", result.Errors[0].Field)

	cfg.ShopData.Discounts = map[string]float64{"vip": -5}
	assert.False(t, Validate(cfg).IsValid())
}
