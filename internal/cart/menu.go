package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// ErrMenuItemUnavailable indicates the item does not exist, is not sold by the restaurant,
// or is switched off.
var ErrMenuItemUnavailable = errors.New("menu item unavailable")

// MenuItem is the authoritative name and price of a dish.
type MenuItem struct {
	Name  string
	Price pricing.Money
}

// MenuLookup resolves a dish of a restaurant.
type MenuLookup interface {
	MenuItem(ctx context.Context, restaurantID, itemID string) (MenuItem, error)
}

// MenuQuerier is the subset of db.Queries used by Menu.
type MenuQuerier interface {
	GetMenuItem(ctx context.Context, id pgtype.UUID) (db.MenuItem, error)
}

// Menu resolves dishes from Postgres.
type Menu struct {
	Q MenuQuerier
}

// MenuItem implements MenuLookup.
func (m Menu) MenuItem(ctx context.Context, restaurantID, itemID string) (MenuItem, error) {
	id, err := uuid.Parse(itemID)
	if err != nil {
		return MenuItem{}, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, itemID)
	}
	row, err := m.Q.GetMenuItem(ctx, pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MenuItem{}, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, itemID)
		}
		return MenuItem{}, err
	}
	rid, err := uuid.Parse(restaurantID)
	if err != nil || !row.IsAvailable || uuid.UUID(row.RestaurantID.Bytes) != rid {
		return MenuItem{}, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, itemID)
	}
	return MenuItem{Name: row.Name, Price: row.Price}, nil
}
