package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pesan-antar/internal/lock"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

type stubMenu map[string]MenuItem

func (m stubMenu) MenuItem(_ context.Context, restaurantID, itemID string) (MenuItem, error) {
	dish, ok := m[restaurantID+"/"+itemID]
	if !ok {
		return MenuItem{}, ErrMenuItemUnavailable
	}
	return dish, nil
}

func newService(t *testing.T, menu MenuLookup) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Service{
		Store:    &Store{R: client, TTL: time.Hour},
		Menu:     menu,
		Lock:     lock.Locker{R: client},
		Validate: validator.New(),
		Now:      func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) },
	}, mr
}

func TestServiceUsesMenuPrices(t *testing.T) {
	svc, mr := newService(t, stubMenu{"r1/adobo": {Name: "Chicken Adobo", Price: pricing.MustMoney("149.50")}})
	ctx := context.Background()
	tampered := pricing.MustMoney("1")

	c, err := svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "adobo", Name: "cheap", UnitPrice: &tampered, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, "Chicken Adobo", c.Items[0].Name)
	require.True(t, c.Subtotal().Equal(pricing.MustMoney("299")))
	require.Equal(t, time.Hour, mr.TTL(Key("u1")))

	loaded, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, c.Items, loaded.Items)
	require.Equal(t, "r1", loaded.RestaurantID)

	_, err = svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "ghost", Quantity: 1})
	require.ErrorIs(t, err, ErrMenuItemUnavailable)
}

func TestServiceWithoutMenuRequiresPrice(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "adobo", Name: "Adobo", Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidItem)

	price := pricing.MustMoney("120")
	c, err := svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "adobo", Name: "Adobo", UnitPrice: &price, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)

	_, err = svc.Add(ctx, "u1", AddInput{ItemID: "adobo", Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidItem)
	_, err = svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "adobo", UnitPrice: &price, Name: "Adobo"})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestServiceFailedMutationLeavesCart(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	price := pricing.MustMoney("120")
	_, err := svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "adobo", Name: "Adobo", UnitPrice: &price, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.Add(ctx, "u1", AddInput{RestaurantID: "r2", ItemID: "sisig", Name: "Sisig", UnitPrice: &price, Quantity: 1})
	require.True(t, errors.Is(err, ErrRestaurantMismatch))
	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "r1", c.RestaurantID)
}

func TestServiceClearDeletesKey(t *testing.T) {
	svc, mr := newService(t, nil)
	ctx := context.Background()
	price := pricing.MustMoney("120")
	_, err := svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "adobo", Name: "Adobo", UnitPrice: &price, Quantity: 1})
	require.NoError(t, err)
	require.True(t, mr.Exists(Key("u1")))

	require.NoError(t, svc.Clear(ctx, "u1"))
	require.False(t, mr.Exists(Key("u1")))
	c, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, c.Empty())
}

func TestServiceConsumeClearsOnlyOnSuccess(t *testing.T) {
	svc, mr := newService(t, nil)
	ctx := context.Background()
	price := pricing.MustMoney("120")
	_, err := svc.Add(ctx, "u1", AddInput{RestaurantID: "r1", ItemID: "adobo", Name: "Adobo", UnitPrice: &price, Quantity: 2})
	require.NoError(t, err)

	boom := errors.New("order rejected")
	err = svc.Consume(ctx, "u1", func(_ context.Context, c Cart) error {
		require.Len(t, c.Items, 1)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, mr.Exists(Key("u1")))

	var seen Cart
	require.NoError(t, svc.Consume(ctx, "u1", func(_ context.Context, c Cart) error {
		seen = c
		return nil
	}))
	require.True(t, seen.Subtotal().Equal(pricing.MustMoney("240")))
	require.False(t, mr.Exists(Key("u1")))
}
