package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getRestaurant = `-- name: GetRestaurant :one
SELECT id, name, latitude, longitude, is_open, created_at FROM restaurants WHERE id = $1
`

func (q *Queries) GetRestaurant(ctx context.Context, id pgtype.UUID) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurant, id)
	var i Restaurant
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Latitude,
		&i.Longitude,
		&i.IsOpen,
		&i.CreatedAt,
	)
	return i, err
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT id, restaurant_id, name, price, is_available, created_at FROM menu_items WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id pgtype.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, id)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Price,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}
