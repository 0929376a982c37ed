package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// Terminal reports whether the status permits no further transition.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

type BookCategory string

const (
	CategoryFiction    BookCategory = "FICTION"
	CategoryNonFiction BookCategory = "NON_FICTION"
	CategoryScience    BookCategory = "SCIENCE"
	CategoryHistory    BookCategory = "HISTORY"
	CategoryTechnology BookCategory = "TECHNOLOGY"
	CategoryChildren   BookCategory = "CHILDREN"
	CategoryBiography  BookCategory = "BIOGRAPHY"
	CategorySelfHelp   BookCategory = "SELF_HELP"
	CategoryOther      BookCategory = "OTHER"
)

var categoryLabels = map[BookCategory]string{
	CategoryFiction:    "Fiction",
	CategoryNonFiction: "Non-Fiction",
	CategoryScience:    "Science",
	CategoryHistory:    "History",
	CategoryTechnology: "Technology",
	CategoryChildren:   "Children",
	CategoryBiography:  "Biography",
	CategorySelfHelp:   "Self-Help",
	CategoryOther:      "Other",
}

// DisplayName returns the human-readable label for the category.
func (c BookCategory) DisplayName() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Valid reports whether the category is a known value.
func (c BookCategory) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

type BookCondition string

const (
	ConditionNew     BookCondition = "NEW"
	ConditionLikeNew BookCondition = "LIKE_NEW"
	ConditionOld     BookCondition = "OLD"
)

var conditionLabels = map[BookCondition]string{
	ConditionNew:     "New",
	ConditionLikeNew: "Like New",
	ConditionOld:     "Old",
}

// DisplayName returns the human-readable label for the condition.
func (c BookCondition) DisplayName() string {
	if label, ok := conditionLabels[c]; ok {
		return label
	}
	return string(c)
}

// Valid reports whether the condition is a known value.
func (c BookCondition) Valid() bool {
	_, ok := conditionLabels[c]
	return ok
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Book struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"ownerId"`
	Title       string        `json:"title"`
	Author      string        `json:"author"`
	Description string        `json:"description"`
	PriceCents  int64         `json:"priceCents"`
	Category    BookCategory  `json:"category"`
	Condition   BookCondition `json:"condition"`
	Sold        bool          `json:"sold"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type PurchaseRequest struct {
	ID          string        `json:"id"`
	BookID      string        `json:"bookId"`
	RequesterID string        `json:"requesterId"`
	Message     string        `json:"message"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ChatMessage IDs are assigned by the store as a strictly increasing
// sequence so clients can use them as a polling cursor.
type ChatMessage struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"requestId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sentAt"`
}

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// WishlistEntry records that a user saved another user's listing. A user
// saves a given book at most once.
type WishlistEntry struct {
	ID      string    `json:"id"`
	UserID  string    `json:"userId"`
	BookID  string    `json:"bookId"`
	SavedAt time.Time `json:"savedAt"`
}
