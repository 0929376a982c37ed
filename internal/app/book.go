package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookswap/pkg/domain"
)

// BookInput carries the fields a user supplies when listing a book.
type BookInput struct {
	Title       string
	Author      string
	Description string
	PriceCents  int64
	Category    domain.BookCategory
	Condition   domain.BookCondition
}

// CreateBook lists a new book for the owner.
func (a *App) CreateBook(owner domain.User, in BookInput) (domain.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	if in.Title == "" {
		return domain.Book{}, errors.New("title required")
	}
	if in.Author == "" {
		return domain.Book{}, errors.New("author required")
	}
	if in.PriceCents < 0 {
		return domain.Book{}, errors.New("price must not be negative")
	}
	if !in.Category.Valid() {
		return domain.Book{}, fmt.Errorf("unknown category %q", in.Category)
	}
	if !in.Condition.Valid() {
		return domain.Book{}, fmt.Errorf("unknown condition %q", in.Condition)
	}
	book := domain.Book{
		ID:          uuid.NewString(),
		OwnerID:     owner.ID,
		Title:       in.Title,
		Author:      in.Author,
		Description: strings.TrimSpace(in.Description),
		PriceCents:  in.PriceCents,
		Category:    in.Category,
		Condition:   in.Condition,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// GetBook retrieves a book by ID.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// ListBooks returns all listings, newest first.
func (a *App) ListBooks() ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// ListBooksByOwner returns the caller's listings, newest first.
func (a *App) ListBooksByOwner(owner domain.User) ([]domain.Book, error) {
	books, err := a.store.ListBooksByOwner(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// MarkSold flags a book as sold. Only the owner may do this; approving a
// request does not mark the book sold automatically.
func (a *App) MarkSold(bookID string, acting domain.User) error {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	if book.OwnerID != acting.ID {
		return ErrNotOwner
	}
	if err := a.store.SetSold(bookID, true); err != nil {
		return fmt.Errorf("set sold: %w", err)
	}
	return nil
}
