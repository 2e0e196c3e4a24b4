package cart

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/pricing"
)

func item(id, price string, qty int) pricing.CartItem {
	return pricing.CartItem{ID: id, Name: "dish " + id, UnitPrice: pricing.MustMoney(price), Quantity: qty}
}

func TestAddIncrementsExistingItem(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add("r1", item("adobo", "150", 1), false))
	require.NoError(t, c.Add("r1", item("adobo", "150", 2), false))
	require.NoError(t, c.Add("r1", item("rice", "25", 2), false))
	require.Len(t, c.Items, 2)
	require.Equal(t, 3, c.Items[0].Quantity)
	require.True(t, c.Subtotal().Equal(pricing.MustMoney("500")))
}

func TestAddRejectsSecondRestaurant(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add("r1", item("adobo", "150", 1), false))
	require.ErrorIs(t, c.Add("r2", item("sisig", "180", 1), false), ErrRestaurantMismatch)
	require.Equal(t, "r1", c.RestaurantID)
	require.Len(t, c.Items, 1)

	require.NoError(t, c.Add("r2", item("sisig", "180", 1), true))
	require.Equal(t, "r2", c.RestaurantID)
	require.Len(t, c.Items, 1)
	require.Equal(t, "sisig", c.Items[0].ID)
}

func TestQuantityBelowOneRejected(t *testing.T) {
	var c Cart
	require.ErrorIs(t, c.Add("r1", item("adobo", "150", 0), false), ErrInvalidQuantity)
	require.True(t, c.Empty())
	require.NoError(t, c.Add("r1", item("adobo", "150", 1), false))
	require.ErrorIs(t, c.UpdateQty("adobo", 0), ErrInvalidQuantity)
	require.ErrorIs(t, c.UpdateQty("adobo", -3), ErrInvalidQuantity)
	require.Equal(t, 1, c.Items[0].Quantity)
	require.NoError(t, c.UpdateQty("adobo", 4))
	require.Equal(t, 4, c.Items[0].Quantity)
	require.ErrorIs(t, c.UpdateQty("missing", 2), ErrItemNotFound)
}

func TestRemoveLastItemReleasesRestaurant(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add("r1", item("adobo", "150", 1), false))
	require.ErrorIs(t, c.Remove("missing"), ErrItemNotFound)
	require.NoError(t, c.Remove("adobo"))
	require.Empty(t, c.RestaurantID)
	require.NoError(t, c.Add("r2", item("sisig", "180", 1), false))
}

func TestAddValidatesItem(t *testing.T) {
	var c Cart
	require.ErrorIs(t, c.Add("", item("adobo", "150", 1), false), ErrInvalidItem)
	require.ErrorIs(t, c.Add("r1", pricing.CartItem{Name: "x", Quantity: 1}, false), ErrInvalidItem)
	require.ErrorIs(t, c.Add("r1", item("adobo", "-1", 1), false), ErrInvalidItem)
}
