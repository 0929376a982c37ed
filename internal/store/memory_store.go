package store

import (
	"sort"
	"sync"

	"bookswap/pkg/domain"
)

// MemoryStore keeps everything in-process. It is used by tests and by
// local development without Postgres. Writes apply immediately; Transact
// only serializes, it cannot roll back.
type MemoryStore struct {
	mu sync.RWMutex
	// txMu serializes Transact bodies so multi-step units of work do not
	// interleave, mirroring the database transaction boundary.
	txMu sync.Mutex

	users     map[string]domain.User
	usernames map[string]string // username -> user ID
	userOrder []string

	books     map[string]domain.Book
	bookOrder []string

	requests     map[string]domain.PurchaseRequest
	requestOrder []string

	messages  map[string][]domain.ChatMessage // request ID -> thread
	nextMsgID int64

	notifications map[string][]domain.Notification // recipient ID -> mailbox

	wishlists []domain.WishlistEntry // insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		usernames:     make(map[string]string),
		books:         make(map[string]domain.Book),
		requests:      make(map[string]domain.PurchaseRequest),
		messages:      make(map[string][]domain.ChatMessage),
		notifications: make(map[string][]domain.Notification),
	}
}

// Transact serializes fn against concurrent units of work.
func (m *MemoryStore) Transact(fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.usernames[u.Username]; ok && existing != u.ID {
		return ErrDuplicate
	}
	if _, ok := m.users[u.ID]; !ok {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernames[username]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// HasUsername checks whether a username is taken.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.usernames[username]
	return ok, nil
}

// ListUsers returns all users in registration order.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// DeleteUser removes a user.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		delete(m.usernames, u.Username)
	}
	delete(m.users, id)
	m.userOrder = removeID(m.userOrder, id)
	return nil
}

// SaveBook stores or updates a book listing.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		m.bookOrder = append(m.bookOrder, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// ListBooks returns all books, newest first.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.bookOrder))
	for i := len(m.bookOrder) - 1; i >= 0; i-- {
		if b, ok := m.books[m.bookOrder[i]]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// ListBooksByOwner returns books filtered by owner, newest first.
func (m *MemoryStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0)
	for i := len(m.bookOrder) - 1; i >= 0; i-- {
		if b, ok := m.books[m.bookOrder[i]]; ok && b.OwnerID == ownerID {
			res = append(res, b)
		}
	}
	return res, nil
}

// SetSold flips the sold flag on a book.
func (m *MemoryStore) SetSold(id string, sold bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil
	}
	b.Sold = sold
	m.books[id] = b
	return nil
}

// DeleteBook removes a book record.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	m.bookOrder = removeID(m.bookOrder, id)
	return nil
}

// CreateRequest inserts a purchase request, enforcing the one-request-per
// (book, requester) constraint.
func (m *MemoryStore) CreateRequest(r domain.PurchaseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.requests {
		if existing.BookID == r.BookID && existing.RequesterID == r.RequesterID {
			return ErrDuplicate
		}
	}
	m.requests[r.ID] = r
	m.requestOrder = append(m.requestOrder, r.ID)
	return nil
}

// GetRequest retrieves a purchase request.
func (m *MemoryStore) GetRequest(id string) (domain.PurchaseRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	return r, ok, nil
}

// HasRequest reports whether any request exists for the pair.
func (m *MemoryStore) HasRequest(bookID, requesterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.requests {
		if r.BookID == bookID && r.RequesterID == requesterID {
			return true, nil
		}
	}
	return false, nil
}

// SetRequestStatus transitions a request only when its current status
// matches the expected prior status.
func (m *MemoryStore) SetRequestStatus(id string, from, to domain.RequestStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	m.requests[id] = r
	return true, nil
}

// ListRequestsByRequester returns requests sent by a user, newest first.
func (m *MemoryStore) ListRequestsByRequester(requesterID string) ([]domain.PurchaseRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PurchaseRequest, 0)
	for i := len(m.requestOrder) - 1; i >= 0; i-- {
		if r, ok := m.requests[m.requestOrder[i]]; ok && r.RequesterID == requesterID {
			res = append(res, r)
		}
	}
	return res, nil
}

// ListRequestsByOwner returns requests received against a user's books,
// newest first.
func (m *MemoryStore) ListRequestsByOwner(ownerID string) ([]domain.PurchaseRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PurchaseRequest, 0)
	for i := len(m.requestOrder) - 1; i >= 0; i-- {
		r, ok := m.requests[m.requestOrder[i]]
		if !ok {
			continue
		}
		if b, ok := m.books[r.BookID]; ok && b.OwnerID == ownerID {
			res = append(res, r)
		}
	}
	return res, nil
}

// ListRequestsByBook returns requests against one book, newest first.
func (m *MemoryStore) ListRequestsByBook(bookID string) ([]domain.PurchaseRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.PurchaseRequest, 0)
	for i := len(m.requestOrder) - 1; i >= 0; i-- {
		if r, ok := m.requests[m.requestOrder[i]]; ok && r.BookID == bookID {
			res = append(res, r)
		}
	}
	return res, nil
}

// DeleteRequest removes a purchase request.
func (m *MemoryStore) DeleteRequest(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	m.requestOrder = removeID(m.requestOrder, id)
	return nil
}

// AppendChatMessage records a message and assigns the next sequence id.
func (m *MemoryStore) AppendChatMessage(msg domain.ChatMessage) (domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsgID++
	msg.ID = m.nextMsgID
	m.messages[msg.RequestID] = append(m.messages[msg.RequestID], msg)
	return msg, nil
}

// ListChatMessages returns messages with id > afterID, ascending by id.
func (m *MemoryStore) ListChatMessages(requestID string, afterID int64) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	thread := m.messages[requestID]
	res := make([]domain.ChatMessage, 0, len(thread))
	for _, msg := range thread {
		if msg.ID > afterID {
			res = append(res, msg)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// DeleteChatMessagesByRequest drops a request's whole thread.
func (m *MemoryStore) DeleteChatMessagesByRequest(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, requestID)
	return nil
}

// AppendNotification appends an unread mailbox entry.
func (m *MemoryStore) AppendNotification(n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.RecipientID] = append(m.notifications[n.RecipientID], n)
	return nil
}

// ListNotificationsFor returns a user's mailbox, newest first.
func (m *MemoryStore) ListNotificationsFor(recipientID string) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	box := m.notifications[recipientID]
	res := make([]domain.Notification, 0, len(box))
	for i := len(box) - 1; i >= 0; i-- {
		res = append(res, box[i])
	}
	return res, nil
}

// CountUnread counts unread notifications for a user.
func (m *MemoryStore) CountUnread(recipientID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications[recipientID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// MarkAllRead flips every unread notification for the user.
func (m *MemoryStore) MarkAllRead(recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.notifications[recipientID]
	for i := range box {
		box[i].Read = true
	}
	return nil
}

// AddWishlist saves a book to a user's wishlist at most once.
func (m *MemoryStore) AddWishlist(w domain.WishlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.wishlists {
		if entry.UserID == w.UserID && entry.BookID == w.BookID {
			return ErrDuplicate
		}
	}
	m.wishlists = append(m.wishlists, w)
	return nil
}

// RemoveWishlist drops a user's wishlist entry for a book, if present.
func (m *MemoryStore) RemoveWishlist(userID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wishlists = filterWishlists(m.wishlists, func(w domain.WishlistEntry) bool {
		return w.UserID == userID && w.BookID == bookID
	})
	return nil
}

// HasWishlist reports whether the user has saved the book.
func (m *MemoryStore) HasWishlist(userID, bookID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.wishlists {
		if w.UserID == userID && w.BookID == bookID {
			return true, nil
		}
	}
	return false, nil
}

// ListWishlistFor returns a user's saved entries, newest first.
func (m *MemoryStore) ListWishlistFor(userID string) ([]domain.WishlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.WishlistEntry
	for i := len(m.wishlists) - 1; i >= 0; i-- {
		if m.wishlists[i].UserID == userID {
			res = append(res, m.wishlists[i])
		}
	}
	return res, nil
}

// CountWishlistsByBook counts how many users saved the book.
func (m *MemoryStore) CountWishlistsByBook(bookID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, w := range m.wishlists {
		if w.BookID == bookID {
			count++
		}
	}
	return count, nil
}

// DeleteWishlistsByBook removes every wishlist entry pointing at a book.
func (m *MemoryStore) DeleteWishlistsByBook(bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wishlists = filterWishlists(m.wishlists, func(w domain.WishlistEntry) bool {
		return w.BookID == bookID
	})
	return nil
}

// DeleteWishlistsByUser removes a user's whole wishlist.
func (m *MemoryStore) DeleteWishlistsByUser(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wishlists = filterWishlists(m.wishlists, func(w domain.WishlistEntry) bool {
		return w.UserID == userID
	})
	return nil
}

func filterWishlists(entries []domain.WishlistEntry, drop func(domain.WishlistEntry) bool) []domain.WishlistEntry {
	filtered := entries[:0]
	for _, entry := range entries {
		if !drop(entry) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func removeID(ids []string, id string) []string {
	filtered := ids[:0]
	for _, item := range ids {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
