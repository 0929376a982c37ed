package app

import (
	"fmt"

	"bookswap/internal/store"
	"bookswap/pkg/domain"
)

// AdminListUsers returns all users (admin use only; the server enforces
// the role).
func (a *App) AdminListUsers() ([]domain.User, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// AdminDeleteBook removes a listing and everything hanging off it:
// chat messages, then purchase requests, then the book, in one unit of
// work. Dependents are removed explicitly rather than via store-level
// cascades.
func (a *App) AdminDeleteBook(bookID string) error {
	_, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	return a.store.Transact(func(tx store.Store) error {
		return deleteBookTree(tx, bookID)
	})
}

// AdminDeleteUser removes an account and its full dependency tree: chat
// messages of every request the user participates in, those requests,
// the user's listings (with their own requests and threads), and finally
// the user row, all in one unit of work.
func (a *App) AdminDeleteUser(userID string) error {
	_, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return a.store.Transact(func(tx store.Store) error {
		sent, err := tx.ListRequestsByRequester(userID)
		if err != nil {
			return fmt.Errorf("list sent requests: %w", err)
		}
		for _, req := range sent {
			if err := deleteRequestTree(tx, req.ID); err != nil {
				return err
			}
		}
		books, err := tx.ListBooksByOwner(userID)
		if err != nil {
			return fmt.Errorf("list books: %w", err)
		}
		for _, book := range books {
			if err := deleteBookTree(tx, book.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteWishlistsByUser(userID); err != nil {
			return fmt.Errorf("delete wishlists: %w", err)
		}
		if err := tx.DeleteUser(userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func deleteBookTree(tx store.Store, bookID string) error {
	reqs, err := tx.ListRequestsByBook(bookID)
	if err != nil {
		return fmt.Errorf("list requests: %w", err)
	}
	for _, req := range reqs {
		if err := deleteRequestTree(tx, req.ID); err != nil {
			return err
		}
	}
	if err := tx.DeleteWishlistsByBook(bookID); err != nil {
		return fmt.Errorf("delete wishlists: %w", err)
	}
	if err := tx.DeleteBook(bookID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

func deleteRequestTree(tx store.Store, requestID string) error {
	if err := tx.DeleteChatMessagesByRequest(requestID); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	if err := tx.DeleteRequest(requestID); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}
