package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bookswap/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&BookModel{},
		&RequestModel{},
		&ChatMessageModel{},
		&NotificationModel{},
		&WishlistModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Transact runs fn inside a database transaction. All writes issued
// through the store handed to fn commit or roll back together.
func (s *GormStore) Transact(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// SaveUser inserts or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Save(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// HasUsername checks whether a username is taken.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// DeleteUser removes a user row.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Delete(&UserModel{}, "id = ?", id).Error
}

// SaveBook inserts or updates a book listing.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Save(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns all books, newest first.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	return s.listBooks()
}

// ListBooksByOwner returns books filtered by owner, newest first.
func (s *GormStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	return s.listBooks("owner_id = ?", ownerID)
}

func (s *GormStore) listBooks(conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// SetSold flips the sold flag on a book.
func (s *GormStore) SetSold(id string, sold bool) error {
	return s.db.Model(&BookModel{}).Where("id = ?", id).Update("sold", sold).Error
}

// DeleteBook removes a book row. Dependent requests and chat messages are
// removed by the caller's cascade routine, not here.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Delete(&BookModel{}, "id = ?", id).Error
}

// CreateRequest inserts a new purchase request. A second request for the
// same (book, requester) pair fails with ErrDuplicate via the unique index.
func (s *GormStore) CreateRequest(r domain.PurchaseRequest) error {
	model := requestToModel(r)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetRequest retrieves a purchase request.
func (s *GormStore) GetRequest(id string) (domain.PurchaseRequest, bool, error) {
	var model RequestModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PurchaseRequest{}, false, nil
		}
		return domain.PurchaseRequest{}, false, err
	}
	return requestFromModel(model), true, nil
}

// HasRequest reports whether any request exists for the pair, regardless
// of status.
func (s *GormStore) HasRequest(bookID, requesterID string) (bool, error) {
	var count int64
	err := s.db.Model(&RequestModel{}).
		Where("book_id = ? AND requester_id = ?", bookID, requesterID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetRequestStatus performs a conditional update expecting the prior
// status, so concurrent approve/reject races have exactly one winner.
func (s *GormStore) SetRequestStatus(id string, from, to domain.RequestStatus) (bool, error) {
	tx := s.db.Model(&RequestModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListRequestsByRequester returns requests sent by a user, newest first.
func (s *GormStore) ListRequestsByRequester(requesterID string) ([]domain.PurchaseRequest, error) {
	var models []RequestModel
	err := s.db.Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return requestsFromModels(models), nil
}

// ListRequestsByOwner returns requests received against a user's books,
// newest first.
func (s *GormStore) ListRequestsByOwner(ownerID string) ([]domain.PurchaseRequest, error) {
	var models []RequestModel
	err := s.db.Model(&RequestModel{}).
		Joins("JOIN books ON books.id = purchase_requests.book_id").
		Where("books.owner_id = ?", ownerID).
		Order("purchase_requests.created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return requestsFromModels(models), nil
}

// ListRequestsByBook returns requests against a single book, newest first.
func (s *GormStore) ListRequestsByBook(bookID string) ([]domain.PurchaseRequest, error) {
	var models []RequestModel
	err := s.db.Where("book_id = ?", bookID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return requestsFromModels(models), nil
}

// DeleteRequest removes a purchase request row.
func (s *GormStore) DeleteRequest(id string) error {
	return s.db.Delete(&RequestModel{}, "id = ?", id).Error
}

// AppendChatMessage inserts a message and returns it with the assigned id.
func (s *GormStore) AppendChatMessage(msg domain.ChatMessage) (domain.ChatMessage, error) {
	model := ChatMessageModel{
		RequestID: msg.RequestID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		SentAt:    msg.SentAt,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.ChatMessage{}, err
	}
	return chatMessageFromModel(model), nil
}

// ListChatMessages returns messages with id > afterID, ascending by id.
func (s *GormStore) ListChatMessages(requestID string, afterID int64) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	err := s.db.Where("request_id = ? AND id > ?", requestID, afterID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		res = append(res, chatMessageFromModel(m))
	}
	return res, nil
}

// DeleteChatMessagesByRequest removes a request's whole thread.
func (s *GormStore) DeleteChatMessagesByRequest(requestID string) error {
	return s.db.Delete(&ChatMessageModel{}, "request_id = ?", requestID).Error
}

// AppendNotification appends an unread mailbox entry.
func (s *GormStore) AppendNotification(n domain.Notification) error {
	model := notificationToModel(n)
	return s.db.Create(&model).Error
}

// ListNotificationsFor returns a user's notifications, newest first.
func (s *GormStore) ListNotificationsFor(recipientID string) ([]domain.Notification, error) {
	var models []NotificationModel
	err := s.db.Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		res = append(res, notificationFromModel(m))
	}
	return res, nil
}

// CountUnread counts unread notifications for a user.
func (s *GormStore) CountUnread(recipientID string) (int, error) {
	var count int64
	err := s.db.Model(&NotificationModel{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// MarkAllRead flips every unread notification for the user in one batch.
func (s *GormStore) MarkAllRead(recipientID string) error {
	return s.db.Model(&NotificationModel{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true).Error
}

// AddWishlist saves a book to a user's wishlist. Saving the same book
// twice violates the (user, book) unique index and returns ErrDuplicate.
func (s *GormStore) AddWishlist(w domain.WishlistEntry) error {
	model := wishlistToModel(w)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// RemoveWishlist drops a user's wishlist entry for a book, if present.
func (s *GormStore) RemoveWishlist(userID, bookID string) error {
	return s.db.Delete(&WishlistModel{}, "user_id = ? AND book_id = ?", userID, bookID).Error
}

// HasWishlist reports whether the user has saved the book.
func (s *GormStore) HasWishlist(userID, bookID string) (bool, error) {
	var count int64
	err := s.db.Model(&WishlistModel{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListWishlistFor returns a user's saved entries, newest first.
func (s *GormStore) ListWishlistFor(userID string) ([]domain.WishlistEntry, error) {
	var models []WishlistModel
	err := s.db.Where("user_id = ?", userID).
		Order("saved_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.WishlistEntry, 0, len(models))
	for _, m := range models {
		res = append(res, wishlistFromModel(m))
	}
	return res, nil
}

// CountWishlistsByBook counts how many users saved the book.
func (s *GormStore) CountWishlistsByBook(bookID string) (int, error) {
	var count int64
	err := s.db.Model(&WishlistModel{}).
		Where("book_id = ?", bookID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// DeleteWishlistsByBook removes every wishlist entry pointing at a book.
func (s *GormStore) DeleteWishlistsByBook(bookID string) error {
	return s.db.Delete(&WishlistModel{}, "book_id = ?", bookID).Error
}

// DeleteWishlistsByUser removes a user's whole wishlist.
func (s *GormStore) DeleteWishlistsByUser(userID string) error {
	return s.db.Delete(&WishlistModel{}, "user_id = ?", userID).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		OwnerID:     b.OwnerID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		PriceCents:  b.PriceCents,
		Category:    string(b.Category),
		Condition:   string(b.Condition),
		Sold:        b.Sold,
		CreatedAt:   b.CreatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Title:       m.Title,
		Author:      m.Author,
		Description: m.Description,
		PriceCents:  m.PriceCents,
		Category:    domain.BookCategory(m.Category),
		Condition:   domain.BookCondition(m.Condition),
		Sold:        m.Sold,
		CreatedAt:   m.CreatedAt,
	}
}

func requestToModel(r domain.PurchaseRequest) RequestModel {
	return RequestModel{
		ID:          r.ID,
		BookID:      r.BookID,
		RequesterID: r.RequesterID,
		Message:     r.Message,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

func requestFromModel(m RequestModel) domain.PurchaseRequest {
	return domain.PurchaseRequest{
		ID:          m.ID,
		BookID:      m.BookID,
		RequesterID: m.RequesterID,
		Message:     m.Message,
		Status:      domain.RequestStatus(m.Status),
		CreatedAt:   m.CreatedAt,
	}
}

func requestsFromModels(models []RequestModel) []domain.PurchaseRequest {
	res := make([]domain.PurchaseRequest, 0, len(models))
	for _, m := range models {
		res = append(res, requestFromModel(m))
	}
	return res
}

func chatMessageFromModel(m ChatMessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        m.ID,
		RequestID: m.RequestID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		SentAt:    m.SentAt,
	}
}

func notificationToModel(n domain.Notification) NotificationModel {
	return NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Message:     n.Message,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	return domain.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Message:     m.Message,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt,
	}
}

func wishlistToModel(w domain.WishlistEntry) WishlistModel {
	return WishlistModel{
		ID:      w.ID,
		UserID:  w.UserID,
		BookID:  w.BookID,
		SavedAt: w.SavedAt,
	}
}

func wishlistFromModel(m WishlistModel) domain.WishlistEntry {
	return domain.WishlistEntry{
		ID:      m.ID,
		UserID:  m.UserID,
		BookID:  m.BookID,
		SavedAt: m.SavedAt,
	}
}
