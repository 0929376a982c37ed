package app

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrBookNotFound    = errors.New("book not found")
	ErrRequestNotFound = errors.New("request not found")

	// ErrNotOwner is returned when someone other than the book's owner
	// tries to approve/reject a request or mark the book sold.
	ErrNotOwner = errors.New("not authorized")

	ErrSelfRequest      = errors.New("you cannot request to buy your own book")
	ErrSelfWishlist     = errors.New("you cannot wishlist your own book")
	ErrAlreadySold      = errors.New("this book is already sold")
	ErrDuplicateRequest = errors.New("you have already sent a request for this book")

	// ErrAlreadyFinalized rejects approve/reject on a request that has
	// already reached a terminal status.
	ErrAlreadyFinalized = errors.New("request already finalized")

	ErrChatForbidden  = errors.New("chat forbidden")
	ErrChatNotReady   = errors.New("chat not available until the request is approved")
	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")
)
