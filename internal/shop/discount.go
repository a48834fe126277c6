package shop

import "math"

// DiscountFunc computes the effective price of an item for a buyer. It is
// a pure function of the item, the buyer's roles, and the base price; the
// orchestrator applies it before the balance check.
type DiscountFunc func(item ShopItem, roles []string, basePrice int) int

// NoDiscount charges the catalog price.
func NoDiscount(_ ShopItem, _ []string, basePrice int) int {
	return basePrice
}

// RoleDiscounts builds a DiscountFunc from role name to percentage off
// (0-100). When a buyer holds several discounted roles, the largest
// discount wins; discounts never stack.
func RoleDiscounts(percentByRole map[string]float64) DiscountFunc {
	return func(_ ShopItem, roles []string, basePrice int) int {
		best := 0.0
		for _, role := range roles {
			if pct, ok := percentByRole[role]; ok && pct > best {
				best = pct
			}
		}
		if best <= 0 {
			return basePrice
		}
		if best > 100 {
			best = 100
		}
		discounted := int(math.Floor(float64(basePrice) * (100 - best) / 100))
		if discounted < 0 {
			return 0
		}
		return discounted
	}
}
