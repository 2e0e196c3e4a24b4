package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// Locker serialises mutations of one user's cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// AddInput is the payload of POST /cart/items. Name and UnitPrice are only read when the
// service has no MenuLookup.
type AddInput struct {
	RestaurantID string         `json:"restaurant_id" validate:"required"`
	ItemID       string         `json:"item_id" validate:"required"`
	Name         string         `json:"name"`
	UnitPrice    *pricing.Money `json:"unit_price"`
	Quantity     int            `json:"quantity"`
	Replace      bool           `json:"replace"`
}

// Service coordinates cart mutations.
type Service struct {
	Store    *Store
	Menu     MenuLookup
	Lock     Locker
	Validate *validator.Validate
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Get loads the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	return s.Store.Load(ctx, userID)
}

// Add resolves the item and adds it to the cart.
func (s *Service) Add(ctx context.Context, userID string, in AddInput) (Cart, error) {
	if s.Validate != nil {
		if err := s.Validate.Struct(in); err != nil {
			return Cart{}, fmt.Errorf("%v: %w", err, ErrInvalidItem)
		}
	}
	if in.Quantity < 1 {
		return Cart{}, ErrInvalidQuantity
	}
	item := pricing.CartItem{ID: strings.TrimSpace(in.ItemID), Name: strings.TrimSpace(in.Name), Quantity: in.Quantity}
	if s.Menu != nil {
		dish, err := s.Menu.MenuItem(ctx, in.RestaurantID, item.ID)
		if err != nil {
			return Cart{}, err
		}
		item.Name = dish.Name
		item.UnitPrice = dish.Price
	} else {
		if in.UnitPrice == nil {
			return Cart{}, fmt.Errorf("unit_price is required: %w", ErrInvalidItem)
		}
		item.UnitPrice = *in.UnitPrice
	}
	return s.mutate(ctx, userID, func(c *Cart) error {
		return c.Add(in.RestaurantID, item, in.Replace)
	})
}

// UpdateQty changes the quantity of an item.
func (s *Service) UpdateQty(ctx context.Context, userID, itemID string, qty int) (Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		return c.UpdateQty(itemID, qty)
	})
}

// Remove deletes an item.
func (s *Service) Remove(ctx context.Context, userID, itemID string) (Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		return c.Remove(itemID)
	})
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.mutate(ctx, userID, func(c *Cart) error {
		c.Clear()
		return nil
	})
	return err
}

// Consume hands the cart to fn while holding the cart lock and empties it when fn
// succeeds. Mutations issued meanwhile wait for the lock, so nothing added during fn is
// dropped by the clear. fn's error leaves the cart untouched.
func (s *Service) Consume(ctx context.Context, userID string, fn func(context.Context, Cart) error) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	run := func(ctx context.Context) error {
		c, err := s.Store.Load(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(ctx, c); err != nil {
			return err
		}
		c.Clear()
		c.UpdatedAt = s.now()
		return s.Store.Save(ctx, userID, c)
	}
	if s.Lock == nil {
		return run(ctx)
	}
	return s.Lock.WithLock(ctx, "lock:"+Key(userID), consumeLockTTL, run)
}

// consumeLockTTL outlives one order submission including its backend timeout.
const consumeLockTTL = 30 * time.Second

func (s *Service) mutate(ctx context.Context, userID string, fn func(*Cart) error) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	var out Cart
	run := func(ctx context.Context) error {
		c, err := s.Store.Load(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := s.Store.Save(ctx, userID, c); err != nil {
			return err
		}
		out = c
		return nil
	}
	if s.Lock == nil {
		return out, run(ctx)
	}
	err := s.Lock.WithLock(ctx, "lock:"+Key(userID), 5*time.Second, run)
	return out, err
}
