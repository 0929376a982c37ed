package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type BookModel struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Author      string `gorm:"not null"`
	Description string
	PriceCents  int64     `gorm:"not null"`
	Category    string    `gorm:"not null"`
	Condition   string    `gorm:"not null"`
	Sold        bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (BookModel) TableName() string { return "books" }

type RequestModel struct {
	ID          string    `gorm:"primaryKey"`
	BookID      string    `gorm:"not null;uniqueIndex:idx_book_requester;index"`
	RequesterID string    `gorm:"not null;uniqueIndex:idx_book_requester;index"`
	Message     string    `gorm:"size:500"`
	Status      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (RequestModel) TableName() string { return "purchase_requests" }

// ChatMessageModel uses an auto-increment id so message order is a
// strictly increasing sequence usable as the polling cursor.
type ChatMessageModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RequestID string    `gorm:"not null;index"`
	SenderID  string    `gorm:"not null"`
	Content   string    `gorm:"not null;size:1000"`
	SentAt    time.Time `gorm:"not null"`
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

type NotificationModel struct {
	ID          string    `gorm:"primaryKey"`
	RecipientID string    `gorm:"not null;index"`
	Message     string    `gorm:"not null"`
	Read        bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (NotificationModel) TableName() string { return "notifications" }

type WishlistModel struct {
	ID      string    `gorm:"primaryKey"`
	UserID  string    `gorm:"not null;uniqueIndex:idx_user_book;index"`
	BookID  string    `gorm:"not null;uniqueIndex:idx_user_book;index"`
	SavedAt time.Time `gorm:"not null;index"`
}

func (WishlistModel) TableName() string { return "wishlists" }
