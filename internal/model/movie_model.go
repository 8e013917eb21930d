package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movie is a catalog row. Price is the current catalog price; orders and
// payments copy it at their own points in time instead of referencing it.
type Movie struct {
	MovieID     int64           `json:"movie_id"`
	Name        string          `json:"name"`
	Year        int             `json:"year"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}
