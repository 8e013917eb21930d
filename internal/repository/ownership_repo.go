package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OwnershipRepository answers "has this profile already paid for this movie".
// A movie counts as owned when an order item for it belongs to an order that
// is PAID or that carries a SUCCESSFUL payment. Both signals are checked
// because the order status update and the payment insert are not atomic on
// every code path; the union stays correct even if one lags the other.
type OwnershipRepository struct {
	DB *pgxpool.Pool
}

func NewOwnershipRepository(db *pgxpool.Pool) *OwnershipRepository {
	return &OwnershipRepository{DB: db}
}

const ownedMoviesQuery = `
	SELECT DISTINCT oi.movie_id
	FROM order_items oi
	JOIN orders o ON o.order_id = oi.order_id
	WHERE o.user_profile_id = $1
	  AND oi.movie_id = ANY($2)
	  AND (
		o.status = 'PAID'
		OR EXISTS (
			SELECT 1 FROM payments p
			WHERE p.order_id = o.order_id AND p.status = 'SUCCESSFUL'
		)
	  )
`

// PurchasedMovieIDs returns the subset of movieIDs the profile already owns.
func (r *OwnershipRepository) PurchasedMovieIDs(ctx context.Context, profileID int64, movieIDs []int64) ([]int64, error) {
	if len(movieIDs) == 0 {
		return nil, nil
	}
	rows, err := r.DB.Query(ctx, ownedMoviesQuery, profileID, movieIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owned []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned = append(owned, id)
	}
	return owned, rows.Err()
}

// IsPurchased reports whether the profile already owns the movie.
func (r *OwnershipRepository) IsPurchased(ctx context.Context, profileID, movieID int64) (bool, error) {
	owned, err := r.PurchasedMovieIDs(ctx, profileID, []int64{movieID})
	if err != nil {
		return false, err
	}
	return len(owned) > 0, nil
}
