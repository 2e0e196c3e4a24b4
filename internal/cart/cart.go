package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

var (
	// ErrRestaurantMismatch indicates an item from a second restaurant was added without replace.
	ErrRestaurantMismatch = errors.New("cart holds items from another restaurant")
	// ErrInvalidQuantity indicates a quantity below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrItemNotFound indicates the item id is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidItem indicates a malformed item.
	ErrInvalidItem = errors.New("invalid cart item")
)

// Cart is the persisted cart of one user.
type Cart struct {
	pricing.Cart
	UpdatedAt time.Time `json:"updated_at"`
}

// Add puts item into the cart. An item already present has its quantity increased. Items
// from a restaurant other than the cart's are rejected unless replace is set, in which case
// the cart is cleared first.
func (c *Cart) Add(restaurantID string, item pricing.CartItem, replace bool) error {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return fmt.Errorf("restaurant_id is required: %w", ErrInvalidItem)
	}
	if err := validateItem(item); err != nil {
		return err
	}
	if !c.Empty() && c.RestaurantID != restaurantID {
		if !replace {
			return ErrRestaurantMismatch
		}
		c.Clear()
	}
	c.RestaurantID = restaurantID
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

// UpdateQty sets the quantity of an existing item.
func (c *Cart) UpdateQty(itemID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = qty
			return nil
		}
	}
	return ErrItemNotFound
}

// Remove deletes an item. Removing the last item releases the restaurant.
func (c *Cart) Remove(itemID string) error {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			if len(c.Items) == 0 {
				c.RestaurantID = ""
			}
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = nil
	c.RestaurantID = ""
}

func validateItem(item pricing.CartItem) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("item id is required: %w", ErrInvalidItem)
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("item name is required: %w", ErrInvalidItem)
	}
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must not be negative: %w", ErrInvalidItem)
	}
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	return nil
}
