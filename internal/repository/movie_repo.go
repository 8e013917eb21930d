package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
)

type MovieRepository struct {
	DB *pgxpool.Pool
}

func NewMovieRepository(db *pgxpool.Pool) *MovieRepository {
	return &MovieRepository{DB: db}
}

// GetByID returns the catalog row for a movie.
func (r *MovieRepository) GetByID(ctx context.Context, movieID int64) (*model.Movie, error) {
	query := `SELECT movie_id, name, year, COALESCE(description, ''), price, created_at FROM movies WHERE movie_id=$1`
	var m model.Movie
	err := r.DB.QueryRow(ctx, query, movieID).Scan(
		&m.MovieID, &m.Name, &m.Year, &m.Description, &m.Price, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMovieNotFound
		}
		return nil, err
	}
	return &m, nil
}

// List returns a page of the catalog, optionally filtered by a
// case-insensitive name substring.
func (r *MovieRepository) List(ctx context.Context, search string, offset, limit int) ([]model.Movie, int, error) {
	query := `
		SELECT movie_id, name, year, COALESCE(description, ''), price, created_at
		FROM movies
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		ORDER BY movie_id
		OFFSET $2 LIMIT $3
	`
	rows, err := r.DB.Query(ctx, query, search, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Movie
	for rows.Next() {
		var m model.Movie
		if err := rows.Scan(&m.MovieID, &m.Name, &m.Year, &m.Description, &m.Price, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM movies WHERE $1 = '' OR name ILIKE '%' || $1 || '%'`
	if err := r.DB.QueryRow(ctx, countQuery, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
