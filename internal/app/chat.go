package app

import (
	"fmt"
	"strings"
	"time"

	"bookswap/pkg/domain"
)

const maxChatMessageLength = 1000

// ChatThread is the view of a request's chat returned to a participant.
type ChatThread struct {
	Request   domain.PurchaseRequest
	Book      domain.Book
	Requester domain.User
	Owner     domain.User
	// Other is the participant across from the caller.
	Other    domain.User
	Messages []domain.ChatMessage
}

// authorizeChat loads the request and verifies the caller may access its
// chat. The same guard applies to open, post, and poll: participant only,
// and only once the request is approved.
func (a *App) authorizeChat(requestID string, acting domain.User) (domain.PurchaseRequest, domain.Book, error) {
	req, ok, err := a.store.GetRequest(requestID)
	if err != nil {
		return domain.PurchaseRequest{}, domain.Book{}, fmt.Errorf("get request: %w", err)
	}
	if !ok {
		return domain.PurchaseRequest{}, domain.Book{}, ErrRequestNotFound
	}
	book, ok, err := a.store.GetBook(req.BookID)
	if err != nil {
		return domain.PurchaseRequest{}, domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.PurchaseRequest{}, domain.Book{}, ErrRequestNotFound
	}
	if acting.ID != req.RequesterID && acting.ID != book.OwnerID {
		return domain.PurchaseRequest{}, domain.Book{}, ErrChatForbidden
	}
	if req.Status != domain.RequestApproved {
		return domain.PurchaseRequest{}, domain.Book{}, ErrChatNotReady
	}
	return req, book, nil
}

// OpenChat returns the full thread plus participant identities.
func (a *App) OpenChat(requestID string, acting domain.User) (ChatThread, error) {
	return a.loadThread(requestID, acting, 0)
}

// PollMessages returns the thread restricted to messages with id greater
// than afterID. afterID 0 is equivalent to OpenChat's message list.
func (a *App) PollMessages(requestID string, acting domain.User, afterID int64) (ChatThread, error) {
	return a.loadThread(requestID, acting, afterID)
}

func (a *App) loadThread(requestID string, acting domain.User, afterID int64) (ChatThread, error) {
	req, book, err := a.authorizeChat(requestID, acting)
	if err != nil {
		return ChatThread{}, err
	}
	requester, ok, err := a.store.GetUserByID(req.RequesterID)
	if err != nil {
		return ChatThread{}, fmt.Errorf("get requester: %w", err)
	}
	if !ok {
		return ChatThread{}, ErrRequestNotFound
	}
	owner, ok, err := a.store.GetUserByID(book.OwnerID)
	if err != nil {
		return ChatThread{}, fmt.Errorf("get owner: %w", err)
	}
	if !ok {
		return ChatThread{}, ErrRequestNotFound
	}
	messages, err := a.store.ListChatMessages(requestID, afterID)
	if err != nil {
		return ChatThread{}, fmt.Errorf("list messages: %w", err)
	}
	other := owner
	if acting.ID == owner.ID {
		other = requester
	}
	return ChatThread{
		Request:   req,
		Book:      book,
		Requester: requester,
		Owner:     owner,
		Other:     other,
		Messages:  messages,
	}, nil
}

// PostMessage appends a message to an approved request's chat. Content is
// trimmed; the store assigns the id and the server assigns the timestamp.
func (a *App) PostMessage(requestID string, acting domain.User, content string) (domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	if len(content) > maxChatMessageLength {
		return domain.ChatMessage{}, ErrMessageTooLong
	}
	if _, _, err := a.authorizeChat(requestID, acting); err != nil {
		return domain.ChatMessage{}, err
	}
	msg, err := a.store.AppendChatMessage(domain.ChatMessage{
		RequestID: requestID,
		SenderID:  acting.ID,
		Content:   content,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}
