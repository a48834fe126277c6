package shop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleDiscountsPicksLargest(t *testing.T) {
	discount := RoleDiscounts(map[string]float64{
		"vip":     10,
		"patron":  25,
		"founder": 50,
	})

	item := ShopItem{Name: "Stone", Price: 100}
	assert.Equal(t, 100, discount(item, nil, 100))
	assert.Equal(t, 90, discount(item, []string{"vip"}, 100))
	assert.Equal(t, 50, discount(item, []string{"vip", "founder", "patron"}, 100))
	assert.Equal(t, 100, discount(item, []string{"member"}, 100))
}

func TestRoleDiscountsRoundsDown(t *testing.T) {
	discount := RoleDiscounts(map[string]float64{"vip": 33})
	assert.Equal(t, 6, discount(ShopItem{}, []string{"vip"}, 10))
}

func TestRoleDiscountsClampsAtFree(t *testing.T) {
	discount := RoleDiscounts(map[string]float64{"staff": 150})
	assert.Equal(t, 0, discount(ShopItem{}, []string{"staff"}, 40))
}
