package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
)

type CartRepository struct {
	DB *pgxpool.Pool
}

func NewCartRepository(db *pgxpool.Pool) *CartRepository {
	return &CartRepository{DB: db}
}

// GetOrCreate returns the profile's cart id, creating the cart on first use.
// The upsert keeps concurrent first adds from racing each other.
func (r *CartRepository) GetOrCreate(ctx context.Context, profileID int64) (int64, error) {
	query := `
		INSERT INTO carts (user_profile_id) VALUES ($1)
		ON CONFLICT (user_profile_id) DO UPDATE SET user_profile_id = EXCLUDED.user_profile_id
		RETURNING cart_id
	`
	var cartID int64
	if err := r.DB.QueryRow(ctx, query, profileID).Scan(&cartID); err != nil {
		return 0, err
	}
	return cartID, nil
}

// GetByID returns the cart row, used to resolve the owner of a target cart
// on moderator paths.
func (r *CartRepository) GetByID(ctx context.Context, cartID int64) (*model.Cart, error) {
	query := `SELECT cart_id, user_profile_id FROM carts WHERE cart_id=$1`
	var cart model.Cart
	if err := r.DB.QueryRow(ctx, query, cartID).Scan(&cart.CartID, &cart.ProfileID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCartNotFound
		}
		return nil, err
	}
	return &cart, nil
}

// InsertItem stages a movie in the cart. The UNIQUE (cart_id, movie_id)
// constraint is the final arbiter for concurrent adds: a conflicting insert
// affects zero rows and is reported as ErrAlreadyOwnedOrStaged.
func (r *CartRepository) InsertItem(ctx context.Context, cartID, movieID int64) error {
	query := `INSERT INTO cart_items (cart_id, movie_id) VALUES ($1, $2) ON CONFLICT (cart_id, movie_id) DO NOTHING`
	tag, err := r.DB.Exec(ctx, query, cartID, movieID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAlreadyOwnedOrStaged
	}
	return nil
}

// DeleteItem removes a staged movie.
func (r *CartRepository) DeleteItem(ctx context.Context, cartID, movieID int64) error {
	query := `DELETE FROM cart_items WHERE cart_id=$1 AND movie_id=$2`
	tag, err := r.DB.Exec(ctx, query, cartID, movieID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCartItemNotFound
	}
	return nil
}

// ListItems returns the cart's items joined with their movies at current
// catalog prices, optionally filtered by a name substring.
func (r *CartRepository) ListItems(ctx context.Context, cartID int64, search string) ([]model.CartMovie, error) {
	query := `
		SELECT ci.cart_item_id, m.movie_id, m.name, m.year, m.price
		FROM cart_items ci
		JOIN movies m ON m.movie_id = ci.movie_id
		WHERE ci.cart_id = $1
		  AND ($2 = '' OR m.name ILIKE '%' || $2 || '%')
		ORDER BY ci.cart_item_id
	`
	rows, err := r.DB.Query(ctx, query, cartID, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.CartMovie
	for rows.Next() {
		var it model.CartMovie
		if err := rows.Scan(&it.CartItemID, &it.MovieID, &it.Name, &it.Year, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
