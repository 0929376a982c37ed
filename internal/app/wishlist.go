package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bookswap/internal/store"
	"bookswap/pkg/domain"
)

// WishlistItem pairs a saved listing with the moment it was saved.
type WishlistItem struct {
	Book    domain.Book `json:"book"`
	SavedAt time.Time   `json:"savedAt"`
}

// ToggleWishlist saves the book to the caller's wishlist, or removes it
// when already saved. Returns true when the book was added. Owners cannot
// wishlist their own listings.
func (a *App) ToggleWishlist(bookID string, acting domain.User) (bool, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return false, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return false, ErrBookNotFound
	}
	if book.OwnerID == acting.ID {
		return false, ErrSelfWishlist
	}

	added := false
	err = a.store.Transact(func(tx store.Store) error {
		saved, err := tx.HasWishlist(acting.ID, bookID)
		if err != nil {
			return fmt.Errorf("check wishlist: %w", err)
		}
		if saved {
			return tx.RemoveWishlist(acting.ID, bookID)
		}
		added = true
		return tx.AddWishlist(domain.WishlistEntry{
			ID:      uuid.NewString(),
			UserID:  acting.ID,
			BookID:  bookID,
			SavedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return false, fmt.Errorf("toggle wishlist: %w", err)
	}
	return added, nil
}

// Wishlist returns the caller's saved books, newest save first.
func (a *App) Wishlist(user domain.User) ([]WishlistItem, error) {
	entries, err := a.store.ListWishlistFor(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	items := make([]WishlistItem, 0, len(entries))
	for _, entry := range entries {
		book, ok, err := a.store.GetBook(entry.BookID)
		if err != nil {
			return nil, fmt.Errorf("get book: %w", err)
		}
		if !ok {
			// saved listing no longer exists; skip rather than fail
			continue
		}
		items = append(items, WishlistItem{Book: book, SavedAt: entry.SavedAt})
	}
	return items, nil
}

// IsWishlisted reports whether the caller has saved the book.
func (a *App) IsWishlisted(bookID string, user domain.User) (bool, error) {
	saved, err := a.store.HasWishlist(user.ID, bookID)
	if err != nil {
		return false, fmt.Errorf("check wishlist: %w", err)
	}
	return saved, nil
}

// WishlistCount returns how many users saved the book.
func (a *App) WishlistCount(bookID string) (int, error) {
	count, err := a.store.CountWishlistsByBook(bookID)
	if err != nil {
		return 0, fmt.Errorf("count wishlists: %w", err)
	}
	return count, nil
}
