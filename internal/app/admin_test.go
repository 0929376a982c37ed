package app

import (
	"errors"
	"testing"
)

func TestAdminDeleteBookCascades(t *testing.T) {
	a := newTestApp(t)
	owner := signUp(t, a, "alice")
	buyer := signUp(t, a, "bob")
	book := listBook(t, a, owner, "Doomed Book")

	req, err := a.SendRequest(book.ID, buyer, "")
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if err := a.Approve(req.ID, owner); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := a.PostMessage(req.ID, buyer, "hello"); err != nil {
		t.Fatalf("post: %v", err)
	}

	if err := a.AdminDeleteBook(book.ID); err != nil {
		t.Fatalf("admin delete book: %v", err)
	}

	if _, err := a.GetBook(book.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected book gone, got %v", err)
	}
	if _, err := a.OpenChat(req.ID, buyer); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected request gone, got %v", err)
	}
	sent, err := a.ListSent(buyer)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 0 {
		t.Fatalf("expected no dangling sent requests, got %d", len(sent))
	}
}

func TestAdminDeleteUserCascades(t *testing.T) {
	a := newTestApp(t)
	admin := signUp(t, a, "root")
	seller := signUp(t, a, "alice")
	buyer := signUp(t, a, "bob")
	_ = admin

	// seller owns a book with an approved request from buyer,
	// and buyer owns a book with a pending request from seller.
	sellerBook := listBook(t, a, seller, "Seller's Book")
	buyerBook := listBook(t, a, buyer, "Buyer's Book")
	reqIn, err := a.SendRequest(sellerBook.ID, buyer, "")
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if err := a.Approve(reqIn.ID, seller); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := a.PostMessage(reqIn.ID, seller, "ping"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := a.SendRequest(buyerBook.ID, seller, ""); err != nil {
		t.Fatalf("send request: %v", err)
	}

	if err := a.AdminDeleteUser(seller.ID); err != nil {
		t.Fatalf("admin delete user: %v", err)
	}

	if _, err := a.FindUserByUsername("alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
	if _, err := a.GetBook(sellerBook.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected seller's book gone, got %v", err)
	}
	// buyer's own book survives, seller's pending request on it does not
	if _, err := a.GetBook(buyerBook.ID); err != nil {
		t.Fatalf("buyer's book should survive: %v", err)
	}
	received, err := a.ListReceived(buyer)
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(received) != 0 {
		t.Fatalf("expected seller's requests gone, got %d", len(received))
	}
	sent, err := a.ListSent(buyer)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 0 {
		t.Fatalf("expected requests on seller's books gone, got %d", len(sent))
	}
}

func TestAdminListUsers(t *testing.T) {
	a := newTestApp(t)
	signUp(t, a, "alice")
	signUp(t, a, "bob")
	users, err := a.AdminListUsers()
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}
