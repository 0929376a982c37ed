package app

import (
	"strings"
	"testing"
	"time"

	"bookswap/internal/store"
	"bookswap/pkg/domain"
)

const testPassword = "Str0ngPass!xyz"

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(Config{
		Store:    store.NewMemoryStore(),
		Sessions: store.NewJWTSessionStore("test-secret", time.Hour),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func signUp(t *testing.T, a *App, username string) domain.User {
	t.Helper()
	user, _, err := a.SignUp(username, testPassword)
	if err != nil {
		t.Fatalf("sign up %s: %v", username, err)
	}
	return user
}

func listBook(t *testing.T, a *App, owner domain.User, title string) domain.Book {
	t.Helper()
	book, err := a.CreateBook(owner, BookInput{
		Title:      title,
		Author:     "Test Author",
		PriceCents: 1500,
		Category:   domain.CategoryFiction,
		Condition:  domain.ConditionLikeNew,
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return book
}

func TestSignUpFirstUserIsAdmin(t *testing.T) {
	a := newTestApp(t)
	first := signUp(t, a, "alice")
	second := signUp(t, a, "bob")
	if first.Role != domain.RoleAdmin {
		t.Fatalf("expected first user to be admin, got %s", first.Role)
	}
	if second.Role != domain.RoleUser {
		t.Fatalf("expected second user to be regular, got %s", second.Role)
	}
}

func TestSignUpRejectsDuplicateUsername(t *testing.T) {
	a := newTestApp(t)
	signUp(t, a, "alice")
	if _, _, err := a.SignUp("alice", testPassword); err == nil {
		t.Fatal("expected duplicate username error")
	}
	// usernames are case-insensitive
	if _, _, err := a.SignUp("ALICE", testPassword); err == nil {
		t.Fatal("expected duplicate username error for different case")
	}
}

func TestSignUpRejectsWeakPassword(t *testing.T) {
	a := newTestApp(t)
	if _, _, err := a.SignUp("alice", "short"); err == nil {
		t.Fatal("expected weak password rejection")
	}
}

func TestLoginAndSessionRoundTrip(t *testing.T) {
	a := newTestApp(t)
	signUp(t, a, "alice")
	user, token, err := a.Login("alice", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resolved, ok := a.UserFromToken(token)
	if !ok {
		t.Fatal("expected token to resolve")
	}
	if resolved.ID != user.ID {
		t.Fatalf("token resolved to wrong user: %s vs %s", resolved.ID, user.ID)
	}
	if resolved.PasswordHash != "" {
		// hash is never serialized, but it is still carried internally
		if !strings.HasPrefix(resolved.PasswordHash, "$2") {
			t.Fatalf("unexpected password hash form: %q", resolved.PasswordHash)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := newTestApp(t)
	signUp(t, a, "alice")
	if _, _, err := a.Login("alice", "WrongPass1!xx"); err == nil {
		t.Fatal("expected invalid credentials error")
	}
	if _, _, err := a.Login("nobody", testPassword); err == nil {
		t.Fatal("expected invalid credentials error for unknown user")
	}
}
