package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookswap/internal/store"
	"bookswap/pkg/domain"
)

const defaultRequestMessage = "I am interested in buying this book."

// SendRequest creates a PENDING purchase request for a book and notifies
// the owner. The request row and the notification commit together.
//
// Any prior request for the same (book, requester) pair blocks a resend,
// including a rejected one.
func (a *App) SendRequest(bookID string, requester domain.User, message string) (domain.PurchaseRequest, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.PurchaseRequest{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.PurchaseRequest{}, ErrBookNotFound
	}
	if book.OwnerID == requester.ID {
		return domain.PurchaseRequest{}, ErrSelfRequest
	}
	if book.Sold {
		return domain.PurchaseRequest{}, ErrAlreadySold
	}
	exists, err := a.store.HasRequest(bookID, requester.ID)
	if err != nil {
		return domain.PurchaseRequest{}, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return domain.PurchaseRequest{}, ErrDuplicateRequest
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = defaultRequestMessage
	}
	req := domain.PurchaseRequest{
		ID:          uuid.NewString(),
		BookID:      book.ID,
		RequesterID: requester.ID,
		Message:     message,
		Status:      domain.RequestPending,
		CreatedAt:   time.Now().UTC(),
	}

	err = a.store.Transact(func(tx store.Store) error {
		if err := tx.CreateRequest(req); err != nil {
			return err
		}
		return tx.AppendNotification(domain.Notification{
			ID:          uuid.NewString(),
			RecipientID: book.OwnerID,
			Message:     fmt.Sprintf("New buy request for %q from %s!", book.Title, requester.Username),
			CreatedAt:   time.Now().UTC(),
		})
	})
	if err != nil {
		// The unique index catches send/send races the pre-check missed.
		if errors.Is(err, store.ErrDuplicate) {
			return domain.PurchaseRequest{}, ErrDuplicateRequest
		}
		return domain.PurchaseRequest{}, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Approve transitions a PENDING request to APPROVED and notifies the
// requester. Only the book's owner may approve.
func (a *App) Approve(requestID string, acting domain.User) error {
	return a.finalize(requestID, acting, domain.RequestApproved)
}

// Reject transitions a PENDING request to REJECTED and notifies the
// requester. Only the book's owner may reject.
func (a *App) Reject(requestID string, acting domain.User) error {
	return a.finalize(requestID, acting, domain.RequestRejected)
}

func (a *App) finalize(requestID string, acting domain.User, to domain.RequestStatus) error {
	req, ok, err := a.store.GetRequest(requestID)
	if err != nil {
		return fmt.Errorf("get request: %w", err)
	}
	if !ok {
		return ErrRequestNotFound
	}
	book, ok, err := a.store.GetBook(req.BookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return ErrRequestNotFound
	}
	if book.OwnerID != acting.ID {
		return ErrNotOwner
	}
	// Fast path; the conditional update below still guards the race.
	if req.Status.Terminal() {
		return ErrAlreadyFinalized
	}

	var message string
	if to == domain.RequestApproved {
		message = fmt.Sprintf("Your request for %q was approved! You can now chat with the owner.", book.Title)
	} else {
		message = fmt.Sprintf("Your request for %q was declined by the owner.", book.Title)
	}

	return a.store.Transact(func(tx store.Store) error {
		// Conditional update: a concurrent approve/reject has exactly one
		// winner, and a terminal request cannot be re-finalized.
		changed, err := tx.SetRequestStatus(requestID, domain.RequestPending, to)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if !changed {
			return ErrAlreadyFinalized
		}
		return tx.AppendNotification(domain.Notification{
			ID:          uuid.NewString(),
			RecipientID: req.RequesterID,
			Message:     message,
			CreatedAt:   time.Now().UTC(),
		})
	})
}

// ListSent returns requests the user has sent, newest first.
func (a *App) ListSent(user domain.User) ([]domain.PurchaseRequest, error) {
	reqs, err := a.store.ListRequestsByRequester(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list sent requests: %w", err)
	}
	return reqs, nil
}

// ListReceived returns requests against the user's books, newest first.
func (a *App) ListReceived(owner domain.User) ([]domain.PurchaseRequest, error) {
	reqs, err := a.store.ListRequestsByOwner(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list received requests: %w", err)
	}
	return reqs, nil
}
