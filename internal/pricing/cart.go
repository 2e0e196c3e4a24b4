package pricing

import "github.com/shopspring/decimal"

// CartItem is one line of a cart.
type CartItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice Money  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (i CartItem) Subtotal() Money {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds items from a single restaurant.
type Cart struct {
	RestaurantID string     `json:"restaurant_id"`
	Items        []CartItem `json:"items"`
}

// Subtotal sums the line subtotals.
func (c Cart) Subtotal() Money {
	sum := Zero()
	for _, it := range c.Items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// Empty reports whether the cart has no items.
func (c Cart) Empty() bool { return len(c.Items) == 0 }
