package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookswap/internal/app"
	"bookswap/internal/store"
	"bookswap/pkg/domain"
)

const testPassword = "Str0ngPass!xyz"

type testEnv struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	redis := miniredis.RunT(t)
	appCore, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: store.NewJWTSessionStore("test-secret", time.Hour),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		App:                       appCore,
		RedisAddr:                 redis.Addr(),
		SignupRateLimitPerMinute:  100,
		LoginRateLimitPerMinute:   100,
		RequestRateLimitPerMinute: 100,
		MessageRateLimitPerMinute: 100,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv}
}

func (e *testEnv) do(method, path, token string, payload any) (*http.Response, []byte) {
	e.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		e.t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) signUp(username string) (domain.User, string) {
	e.t.Helper()
	resp, data := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username,
		"password": testPassword,
	})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("signup %s: expected 201, got %d: %s", username, resp.StatusCode, data)
	}
	var out struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		e.t.Fatalf("decode signup response: %v", err)
	}
	return out.User, out.Token
}

func (e *testEnv) createBook(token, title string) domain.Book {
	e.t.Helper()
	resp, data := e.do(http.MethodPost, "/api/books", token, map[string]any{
		"title":      title,
		"author":     "Test Author",
		"priceCents": 1200,
		"category":   "FICTION",
		"condition":  "LIKE_NEW",
	})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("create book: expected 201, got %d: %s", resp.StatusCode, data)
	}
	var book domain.Book
	if err := json.Unmarshal(data, &book); err != nil {
		e.t.Fatalf("decode book: %v", err)
	}
	return book
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.do(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)
	user, token := e.signUp("alice")
	if user.Role != domain.RoleAdmin {
		t.Fatalf("first user should be admin, got %s", user.Role)
	}

	resp, data := e.do(http.MethodGet, "/api/users/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var me domain.User
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Username != "alice" {
		t.Fatalf("unexpected me: %+v", me)
	}
	if bytes.Contains(data, []byte("passwordHash")) || bytes.Contains(data, []byte("$2")) {
		t.Fatalf("password hash leaked: %s", data)
	}

	resp, _ = e.do(http.MethodGet, "/api/users/me", "bogus-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}

	resp, data = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "WrongPass1!x",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad login, got %d: %s", resp.StatusCode, data)
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signUp("alice")
	buyer, buyerToken := e.signUp("bob")
	book := e.createBook(ownerToken, "The Dispossessed")

	resp, data := e.do(http.MethodPost, "/api/books/"+book.ID+"/request", buyerToken, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send request: expected 201, got %d: %s", resp.StatusCode, data)
	}
	var req domain.PurchaseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Status != domain.RequestPending || req.RequesterID != buyer.ID {
		t.Fatalf("unexpected request: %+v", req)
	}

	// duplicate blocked
	resp, _ = e.do(http.MethodPost, "/api/books/"+book.ID+"/request", buyerToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate request: expected 400, got %d", resp.StatusCode)
	}

	// self request blocked
	resp, _ = e.do(http.MethodPost, "/api/books/"+book.ID+"/request", ownerToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self request: expected 400, got %d", resp.StatusCode)
	}

	// only the owner may approve
	resp, _ = e.do(http.MethodPost, "/api/requests/"+req.ID+"/approve", buyerToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("buyer approve: expected 403, got %d", resp.StatusCode)
	}
	resp, data = e.do(http.MethodPost, "/api/requests/"+req.ID+"/approve", ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", resp.StatusCode, data)
	}

	// terminal state conflicts
	resp, _ = e.do(http.MethodPost, "/api/requests/"+req.ID+"/reject", ownerToken, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reject after approve: expected 409, got %d", resp.StatusCode)
	}

	// unknown request id
	resp, _ = e.do(http.MethodPost, "/api/requests/missing/approve", ownerToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("approve missing: expected 404, got %d", resp.StatusCode)
	}
}

func TestChatOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	owner, ownerToken := e.signUp("alice")
	_, buyerToken := e.signUp("bob")
	_, strangerToken := e.signUp("mallory")
	book := e.createBook(ownerToken, "A Wizard of Earthsea")

	resp, data := e.do(http.MethodPost, "/api/books/"+book.ID+"/request", buyerToken, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send request: %d: %s", resp.StatusCode, data)
	}
	var req domain.PurchaseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}

	// chat closed before approval
	resp, _ = e.do(http.MethodGet, "/api/chat/"+req.ID, buyerToken, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("chat before approval: expected 409, got %d", resp.StatusCode)
	}

	resp, _ = e.do(http.MethodPost, "/api/requests/"+req.ID+"/approve", ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: got %d", resp.StatusCode)
	}

	// outsiders stay out
	resp, _ = e.do(http.MethodGet, "/api/chat/"+req.ID, strangerToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger chat: expected 403, got %d", resp.StatusCode)
	}

	resp, data = e.do(http.MethodPost, "/api/chat/"+req.ID+"/send", buyerToken, map[string]string{"content": "Still available?"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send message: expected 201, got %d: %s", resp.StatusCode, data)
	}
	var first struct {
		ID  int64 `json:"id"`
		Own bool  `json:"own"`
	}
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if !first.Own {
		t.Fatal("sender's echo should be marked own")
	}

	resp, _ = e.do(http.MethodPost, "/api/chat/"+req.ID+"/send", ownerToken, map[string]string{"content": "Yes!"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("owner message: got %d", resp.StatusCode)
	}

	// empty message rejected
	resp, _ = e.do(http.MethodPost, "/api/chat/"+req.ID+"/send", ownerToken, map[string]string{"content": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message: expected 400, got %d", resp.StatusCode)
	}

	// open gives the full thread with projections
	resp, data = e.do(http.MethodGet, "/api/chat/"+req.ID, ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open chat: got %d: %s", resp.StatusCode, data)
	}
	var thread struct {
		Other    string `json:"other"`
		Messages []struct {
			ID     int64  `json:"id"`
			Sender string `json:"sender"`
			Time   string `json:"time"`
			Date   string `json:"date"`
			Own    bool   `json:"own"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &thread); err != nil {
		t.Fatalf("decode thread: %v", err)
	}
	if thread.Other != "bob" {
		t.Fatalf("owner's counterpart should be bob, got %q", thread.Other)
	}
	if len(thread.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(thread.Messages))
	}
	if thread.Messages[0].Sender != "bob" || thread.Messages[0].Own {
		t.Fatalf("unexpected first message: %+v", thread.Messages[0])
	}
	if thread.Messages[1].Sender != owner.Username || !thread.Messages[1].Own {
		t.Fatalf("unexpected second message: %+v", thread.Messages[1])
	}
	if thread.Messages[0].Time == "" || thread.Messages[0].Date == "" {
		t.Fatalf("expected formatted time and date, got %+v", thread.Messages[0])
	}

	// poll past the first message returns only the second
	path := fmt.Sprintf("/api/chat/%s/messages?after=%d", req.ID, thread.Messages[0].ID)
	resp, data = e.do(http.MethodGet, path, buyerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll: got %d: %s", resp.StatusCode, data)
	}
	var poll struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &poll); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if poll.Count != 1 || len(poll.Items) != 1 || poll.Items[0].ID != thread.Messages[1].ID {
		t.Fatalf("unexpected poll result: %s", data)
	}

	// bad cursor rejected
	resp, _ = e.do(http.MethodGet, "/api/chat/"+req.ID+"/messages?after=abc", buyerToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor: expected 400, got %d", resp.StatusCode)
	}
}

func TestNotificationsOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signUp("alice")
	_, buyerToken := e.signUp("bob")
	book := e.createBook(ownerToken, "Left Hand of Darkness")

	resp, _ := e.do(http.MethodPost, "/api/books/"+book.ID+"/request", buyerToken, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send request: got %d", resp.StatusCode)
	}

	resp, data := e.do(http.MethodGet, "/api/notifications/unread-count", ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unread count: got %d", resp.StatusCode)
	}
	var count struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count.Count != 1 {
		t.Fatalf("expected 1 unread, got %d", count.Count)
	}

	resp, data = e.do(http.MethodGet, "/api/notifications", ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifications: got %d: %s", resp.StatusCode, data)
	}

	resp, data = e.do(http.MethodGet, "/api/notifications/unread-count", ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unread count: got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count.Count != 0 {
		t.Fatalf("expected 0 unread after listing, got %d", count.Count)
	}
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.signUp("root") // first user is admin
	seller, sellerToken := e.signUp("alice")
	book := e.createBook(sellerToken, "Disposable")

	// non-admin is rejected
	resp, _ := e.do(http.MethodGet, "/api/admin/users", sellerToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin list users: expected 403, got %d", resp.StatusCode)
	}

	resp, data := e.do(http.MethodGet, "/api/admin/users", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list users: got %d: %s", resp.StatusCode, data)
	}
	var users struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if users.Count != 2 {
		t.Fatalf("expected 2 users, got %d", users.Count)
	}

	resp, _ = e.do(http.MethodDelete, "/api/admin/books/"+book.ID, adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin delete book: got %d", resp.StatusCode)
	}
	resp, _ = e.do(http.MethodGet, "/api/books/"+book.ID, adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted book lookup: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = e.do(http.MethodDelete, "/api/admin/users/"+seller.ID, adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin delete user: got %d", resp.StatusCode)
	}
}

func TestWishlistOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signUp("alice")
	_, buyerToken := e.signUp("bob")
	book := e.createBook(ownerToken, "The Lathe of Heaven")

	// owners cannot save their own listing
	resp, _ := e.do(http.MethodPost, "/api/books/"+book.ID+"/wishlist", ownerToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self wishlist: expected 400, got %d", resp.StatusCode)
	}

	resp, data := e.do(http.MethodPost, "/api/books/"+book.ID+"/wishlist", buyerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var toggle struct {
		Saved bool `json:"saved"`
	}
	if err := json.Unmarshal(data, &toggle); err != nil {
		t.Fatalf("decode toggle: %v", err)
	}
	if !toggle.Saved {
		t.Fatal("first toggle should save")
	}

	// detail view carries labels and the caller's wishlist standing
	resp, data = e.do(http.MethodGet, "/api/books/"+book.ID, buyerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("book detail: got %d: %s", resp.StatusCode, data)
	}
	var detail struct {
		CategoryLabel  string `json:"categoryLabel"`
		ConditionLabel string `json:"conditionLabel"`
		WishlistCount  int    `json:"wishlistCount"`
		Wishlisted     bool   `json:"wishlisted"`
	}
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.CategoryLabel != "Fiction" || detail.ConditionLabel != "Like New" {
		t.Fatalf("unexpected labels: %+v", detail)
	}
	if detail.WishlistCount != 1 || !detail.Wishlisted {
		t.Fatalf("unexpected wishlist standing: %+v", detail)
	}

	// the owner sees the count but not a saved flag
	resp, data = e.do(http.MethodGet, "/api/books/"+book.ID, ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("book detail as owner: got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.WishlistCount != 1 || detail.Wishlisted {
		t.Fatalf("unexpected owner view: %+v", detail)
	}

	resp, data = e.do(http.MethodGet, "/api/wishlist", buyerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wishlist: got %d: %s", resp.StatusCode, data)
	}
	var wl struct {
		Items []struct {
			Book struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"book"`
			SavedAt string `json:"savedAt"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &wl); err != nil {
		t.Fatalf("decode wishlist: %v", err)
	}
	if wl.Count != 1 || len(wl.Items) != 1 || wl.Items[0].Book.ID != book.ID {
		t.Fatalf("unexpected wishlist: %s", data)
	}
	if wl.Items[0].SavedAt == "" {
		t.Fatal("expected savedAt to be set")
	}

	// second toggle removes
	resp, data = e.do(http.MethodPost, "/api/books/"+book.ID+"/wishlist", buyerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle again: got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &toggle); err != nil {
		t.Fatalf("decode toggle: %v", err)
	}
	if toggle.Saved {
		t.Fatal("second toggle should remove")
	}
	resp, data = e.do(http.MethodGet, "/api/wishlist", buyerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wishlist: got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &wl); err != nil {
		t.Fatalf("decode wishlist: %v", err)
	}
	if wl.Count != 0 {
		t.Fatalf("expected empty wishlist after removal, got %d", wl.Count)
	}
}
