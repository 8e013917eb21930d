package services

import (
	"context"

	"github.com/sohail-eng/online-cinema/internal/model"
)

type MovieCatalog interface {
	GetByID(ctx context.Context, movieID int64) (*model.Movie, error)
	List(ctx context.Context, search string, offset, limit int) ([]model.Movie, int, error)
}

// MovieService exposes read-only catalog browsing. Catalog management lives
// in another system.
type MovieService struct {
	Movies MovieCatalog
}

func NewMovieService(movies MovieCatalog) *MovieService {
	return &MovieService{Movies: movies}
}

func (s *MovieService) Detail(ctx context.Context, movieID int64) (*model.Movie, error) {
	return s.Movies.GetByID(ctx, movieID)
}

func (s *MovieService) List(ctx context.Context, search string, offset, limit int) ([]model.Movie, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Movies.List(ctx, search, offset, limit)
}
