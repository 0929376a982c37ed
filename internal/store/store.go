package store

import (
	"errors"

	"bookswap/pkg/domain"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint,
// such as a second purchase request for the same (book, requester) pair.
var ErrDuplicate = errors.New("duplicate record")

// Store defines persistence operations for users, books, purchase
// requests, chat messages, notifications, and wishlists.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	HasUsername(username string) (bool, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)
	DeleteUser(id string) error

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	ListBooksByOwner(ownerID string) ([]domain.Book, error)
	SetSold(id string, sold bool) error
	DeleteBook(id string) error

	// purchase requests
	CreateRequest(domain.PurchaseRequest) error
	GetRequest(id string) (domain.PurchaseRequest, bool, error)
	HasRequest(bookID, requesterID string) (bool, error)
	// SetRequestStatus transitions a request from the expected prior status
	// and reports whether a row actually changed. Callers use the false
	// return to detect lost transition races and already-terminal requests.
	SetRequestStatus(id string, from, to domain.RequestStatus) (bool, error)
	ListRequestsByRequester(requesterID string) ([]domain.PurchaseRequest, error)
	ListRequestsByOwner(ownerID string) ([]domain.PurchaseRequest, error)
	ListRequestsByBook(bookID string) ([]domain.PurchaseRequest, error)
	DeleteRequest(id string) error

	// chat messages
	AppendChatMessage(domain.ChatMessage) (domain.ChatMessage, error)
	// ListChatMessages returns messages with id > afterID ascending by id;
	// afterID 0 returns the full thread.
	ListChatMessages(requestID string, afterID int64) ([]domain.ChatMessage, error)
	DeleteChatMessagesByRequest(requestID string) error

	// notifications
	AppendNotification(domain.Notification) error
	ListNotificationsFor(recipientID string) ([]domain.Notification, error)
	CountUnread(recipientID string) (int, error)
	MarkAllRead(recipientID string) error

	// wishlists
	AddWishlist(domain.WishlistEntry) error
	RemoveWishlist(userID, bookID string) error
	HasWishlist(userID, bookID string) (bool, error)
	ListWishlistFor(userID string) ([]domain.WishlistEntry, error)
	CountWishlistsByBook(bookID string) (int, error)
	DeleteWishlistsByBook(bookID string) error
	DeleteWishlistsByUser(userID string) error

	// Transact runs fn against a store view whose writes commit or roll
	// back as a single unit.
	Transact(fn func(Store) error) error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
