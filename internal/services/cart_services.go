package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/model"
)

// Actor is the authenticated caller as resolved by the transport layer.
type Actor struct {
	ProfileID int64
	Role      model.Role
}

type MovieStore interface {
	GetByID(ctx context.Context, movieID int64) (*model.Movie, error)
}

type CartStore interface {
	GetOrCreate(ctx context.Context, profileID int64) (int64, error)
	GetByID(ctx context.Context, cartID int64) (*model.Cart, error)
	InsertItem(ctx context.Context, cartID, movieID int64) error
	DeleteItem(ctx context.Context, cartID, movieID int64) error
	ListItems(ctx context.Context, cartID int64, search string) ([]model.CartMovie, error)
}

type OwnershipStore interface {
	PurchasedMovieIDs(ctx context.Context, profileID int64, movieIDs []int64) ([]int64, error)
	IsPurchased(ctx context.Context, profileID, movieID int64) (bool, error)
}

type CartService struct {
	Movies    MovieStore
	Carts     CartStore
	Ownership OwnershipStore
}

func NewCartService(movies MovieStore, carts CartStore, ownership OwnershipStore) *CartService {
	return &CartService{Movies: movies, Carts: carts, Ownership: ownership}
}

// resolveCart returns the cart to act on and its owning profile. A nil
// targetCartID means the actor's own cart (created lazily); acting on
// another user's cart requires at least the moderator tier.
func (s *CartService) resolveCart(ctx context.Context, actor Actor, targetCartID *int64) (cartID, ownerID int64, err error) {
	if targetCartID == nil {
		cartID, err = s.Carts.GetOrCreate(ctx, actor.ProfileID)
		return cartID, actor.ProfileID, err
	}
	if !actor.Role.AtLeast(model.RoleModerator) {
		return 0, 0, apperrors.ErrPermissionDenied
	}
	cart, err := s.Carts.GetByID(ctx, *targetCartID)
	if err != nil {
		return 0, 0, err
	}
	return cart.CartID, cart.ProfileID, nil
}

// Add stages a movie in the cart. Rejected when the movie is already staged
// or already covered by a settled purchase for the cart's owner. The
// existence pre-check is an optimization; the unique constraint on
// (cart_id, movie_id) decides concurrent adds.
func (s *CartService) Add(ctx context.Context, actor Actor, movieID int64, targetCartID *int64) error {
	if _, err := s.Movies.GetByID(ctx, movieID); err != nil {
		return err
	}
	cartID, ownerID, err := s.resolveCart(ctx, actor, targetCartID)
	if err != nil {
		return err
	}

	owned, err := s.Ownership.IsPurchased(ctx, ownerID, movieID)
	if err != nil {
		return err
	}
	if owned {
		return apperrors.ErrAlreadyOwnedOrStaged
	}

	return s.Carts.InsertItem(ctx, cartID, movieID)
}

// Remove deletes a staged movie from the cart.
func (s *CartService) Remove(ctx context.Context, actor Actor, movieID int64, targetCartID *int64) error {
	if _, err := s.Movies.GetByID(ctx, movieID); err != nil {
		return err
	}
	cartID, _, err := s.resolveCart(ctx, actor, targetCartID)
	if err != nil {
		return err
	}
	return s.Carts.DeleteItem(ctx, cartID, movieID)
}

// Items returns the unpaid partition of the cart with the total at current
// catalog prices. The total is recomputed at read time on purpose: cart
// contents are mutable and must track the catalog until checkout.
func (s *CartService) Items(ctx context.Context, actor Actor, targetCartID *int64, search string) (*model.CartResponse, error) {
	unpaid, _, err := s.partition(ctx, actor, targetCartID, search)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, it := range unpaid {
		total = total.Add(it.Price)
	}
	if unpaid == nil {
		unpaid = []model.CartMovie{}
	}
	return &model.CartResponse{Items: unpaid, TotalPrice: total}, nil
}

// PurchasedItems returns the cart items already covered by a settled
// purchase.
func (s *CartService) PurchasedItems(ctx context.Context, actor Actor, targetCartID *int64, search string) ([]model.CartMovie, error) {
	_, paid, err := s.partition(ctx, actor, targetCartID, search)
	if err != nil {
		return nil, err
	}
	if paid == nil {
		paid = []model.CartMovie{}
	}
	return paid, nil
}

// partition splits the cart's items by the ownership predicate.
func (s *CartService) partition(ctx context.Context, actor Actor, targetCartID *int64, search string) (unpaid, paid []model.CartMovie, err error) {
	cartID, ownerID, err := s.resolveCart(ctx, actor, targetCartID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.Carts.ListItems(ctx, cartID, search)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, nil
	}

	movieIDs := make([]int64, 0, len(items))
	for _, it := range items {
		movieIDs = append(movieIDs, it.MovieID)
	}
	ownedIDs, err := s.Ownership.PurchasedMovieIDs(ctx, ownerID, movieIDs)
	if err != nil {
		return nil, nil, err
	}
	owned := make(map[int64]bool, len(ownedIDs))
	for _, id := range ownedIDs {
		owned[id] = true
	}

	for _, it := range items {
		if owned[it.MovieID] {
			paid = append(paid, it)
		} else {
			unpaid = append(unpaid, it)
		}
	}
	return unpaid, paid, nil
}
