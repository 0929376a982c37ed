package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookswap/internal/app"
	"bookswap/internal/ratelimit"
	"bookswap/internal/util"
	"bookswap/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	RedisAddr                 string
	RedisPassword             string
	TrustedProxyCIDRs         []string
	SignupRateLimitPerMinute  int
	LoginRateLimitPerMinute   int
	RequestRateLimitPerMinute int
	MessageRateLimitPerMinute int
	SignupLimiter             *ratelimit.FixedWindowLimiter
	LoginLimiter              *ratelimit.FixedWindowLimiter
	RequestLimiter            *ratelimit.FixedWindowLimiter
	MessageLimiter            *ratelimit.FixedWindowLimiter
}

// Server exposes the marketplace HTTP endpoints.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	trustedProxies *util.TrustedProxies
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	requestLimiter *ratelimit.FixedWindowLimiter
	messageLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Limiters may be
// supplied directly (tests); otherwise they are built against Redis.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	rateWindow := time.Minute
	newLimiter := func(existing *ratelimit.FixedWindowLimiter, name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
		if existing != nil {
			return existing, nil
		}
		if limit <= 0 {
			limit = fallback
		}
		prefix := "bookswap:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter(cfg.SignupLimiter, "signup", cfg.SignupRateLimitPerMinute, 5)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter(cfg.LoginLimiter, "login", cfg.LoginRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	requestLimiter, err := newLimiter(cfg.RequestLimiter, "request", cfg.RequestRateLimitPerMinute, 30)
	if err != nil {
		return nil, err
	}
	messageLimiter, err := newLimiter(cfg.MessageLimiter, "message", cfg.MessageRateLimitPerMinute, 60)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		trustedProxies: trusted,
		signupLimiter:  signupLimiter,
		loginLimiter:   loginLimiter,
		requestLimiter: requestLimiter,
		messageLimiter: messageLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the shared middlewares.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	// books
	s.mux.Handle("/api/books", s.authenticated(s.handleBooks))
	s.mux.Handle("/api/books/", s.authenticated(s.handleBookByID))

	// wishlist
	s.mux.Handle("/api/wishlist", s.authenticated(s.handleWishlist))

	// purchase requests
	s.mux.Handle("/api/requests/sent", s.authenticated(s.handleRequestsSent))
	s.mux.Handle("/api/requests/received", s.authenticated(s.handleRequestsReceived))
	s.mux.Handle("/api/requests/", s.authenticated(s.handleRequestByID))

	// chat
	s.mux.Handle("/api/chat/", s.authenticated(s.handleChat))

	// notifications
	s.mux.Handle("/api/notifications", s.authenticated(s.handleNotifications))
	s.mux.Handle("/api/notifications/unread-count", s.authenticated(s.handleUnreadCount))

	// admin
	s.mux.Handle("/api/admin/users", s.adminOnly(s.handleAdminUsers))
	s.mux.Handle("/api/admin/users/", s.adminOnly(s.handleAdminUserByID))
	s.mux.Handle("/api/admin/books/", s.adminOnly(s.handleAdminBookByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "admin.authorize", "fail", "reason", "missing_or_invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if user.Role != domain.RoleAdmin {
			s.audit(r, "admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		s.audit(r, "admin.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "signup", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(req.Username, req.Password)
	if err != nil {
		s.audit(r, "signup", "fail", "reason", err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.audit(r, "signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.audit(r, "login", "fail", "reason", "invalid_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	s.audit(r, "logout", "success", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// /api/books
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("mine") == "true" {
			books, err := s.app.ListBooksByOwner(user)
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": books, "count": len(books)})
			return
		}
		books, err := s.app.ListBooks()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": books, "count": len(books)})
	case http.MethodPost:
		var req createBookRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.CreateBook(user, app.BookInput{
			Title:       req.Title,
			Author:      req.Author,
			Description: req.Description,
			PriceCents:  req.PriceCents,
			Category:    domain.BookCategory(strings.ToUpper(strings.TrimSpace(req.Category))),
			Condition:   domain.BookCondition(strings.ToUpper(strings.TrimSpace(req.Condition))),
		})
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

// /api/books/{id}, /api/books/{id}/request, /api/books/{id}/sold
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "request":
			s.handleSendRequest(w, r, user, id)
		case "sold":
			s.handleMarkSold(w, r, user, id)
		case "wishlist":
			s.handleToggleWishlist(w, r, user, id)
		default:
			http.NotFound(w, r)
		}
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	book, err := s.app.GetBook(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	wishlistCount, err := s.app.WishlistCount(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	wishlisted, err := s.app.IsWishlisted(id, user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookView{
		Book:           book,
		CategoryLabel:  book.Category.DisplayName(),
		ConditionLabel: book.Condition.DisplayName(),
		WishlistCount:  wishlistCount,
		Wishlisted:     wishlisted,
	})
}

func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request, user domain.User, bookID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.requestLimiter, "too many purchase requests") {
		s.audit(r, "request.send", "rate_limited", "user_id", user.ID)
		return
	}
	var req sendRequestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := s.app.SendRequest(bookID, user, req.Message)
	if err != nil {
		s.audit(r, "request.send", "fail", "user_id", user.ID, "book_id", bookID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "request.send", "success", "user_id", user.ID, "book_id", bookID, "request_id", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleToggleWishlist(w http.ResponseWriter, r *http.Request, user domain.User, bookID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	added, err := s.app.ToggleWishlist(bookID, user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": added})
}

// /api/wishlist
func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.Wishlist(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleMarkSold(w http.ResponseWriter, r *http.Request, user domain.User, bookID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.MarkSold(bookID, user); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sold"})
}

// /api/requests/*
func (s *Server) handleRequestsSent(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListSent(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleRequestsReceived(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ListReceived(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// /api/requests/{id}/approve, /api/requests/{id}/reject
func (s *Server) handleRequestByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/requests/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := parts[0]
	var err error
	switch parts[1] {
	case "approve":
		err = s.app.Approve(id, user)
	case "reject":
		err = s.app.Reject(id, user)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.audit(r, "request."+parts[1], "fail", "user_id", user.ID, "request_id", id, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "request."+parts[1], "success", "user_id", user.ID, "request_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /api/chat/{id}, /api/chat/{id}/messages, /api/chat/{id}/send
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		thread, err := s.app.OpenChat(id, user)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, threadView(thread, user))
		return
	}
	switch parts[1] {
	case "messages":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		afterID, err := parseAfterID(r.URL.Query().Get("after"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		thread, err := s.app.PollMessages(id, user, afterID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": messageViews(thread, user),
			"count": len(thread.Messages),
		})
	case "send":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r, s.messageLimiter, "too many messages") {
			s.audit(r, "chat.send", "rate_limited", "user_id", user.ID)
			return
		}
		var req sendMessageRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		msg, err := s.app.PostMessage(id, user, req.Content)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newMessageView(msg, user.Username, true))
	default:
		http.NotFound(w, r)
	}
}

// notifications
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.Notifications(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	count, err := s.app.UnreadCount(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// admin handlers
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.AdminListUsers()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users, "count": len(users)})
}

func (s *Server) handleAdminUserByID(w http.ResponseWriter, r *http.Request, admin domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.AdminDeleteUser(id); err != nil {
		s.audit(r, "admin.user.delete", "fail", "admin_id", admin.ID, "target_id", id, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.delete", "success", "admin_id", admin.ID, "target_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAdminBookByID(w http.ResponseWriter, r *http.Request, admin domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.AdminDeleteBook(id); err != nil {
		s.audit(r, "admin.book.delete", "fail", "admin_id", admin.ID, "book_id", id, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.book.delete", "success", "admin_id", admin.ID, "book_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func parseAfterID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid cursor %q", raw)
	}
	return n, nil
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type createBookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	Category    string `json:"category"`
	Condition   string `json:"condition"`
}

type sendRequestRequest struct {
	Message string `json:"message"`
}

// bookView is the detail projection of a listing: the book plus its
// display labels and wishlist standing for the caller.
type bookView struct {
	domain.Book
	CategoryLabel  string `json:"categoryLabel"`
	ConditionLabel string `json:"conditionLabel"`
	WishlistCount  int    `json:"wishlistCount"`
	Wishlisted     bool   `json:"wishlisted"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// messageView is the transport shape for chat messages: sender username,
// preformatted time/date, and an own flag computed against the caller.
type messageView struct {
	ID      int64  `json:"id"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	Time    string `json:"time"`
	Date    string `json:"date"`
	Own     bool   `json:"own"`
}

type chatThreadView struct {
	Request  domain.PurchaseRequest `json:"request"`
	Book     domain.Book            `json:"book"`
	Other    string                 `json:"other"`
	Messages []messageView          `json:"messages"`
}

func newMessageView(msg domain.ChatMessage, sender string, own bool) messageView {
	return messageView{
		ID:      msg.ID,
		Sender:  sender,
		Content: msg.Content,
		Time:    msg.SentAt.Format("03:04 PM"),
		Date:    msg.SentAt.Format("02 Jan 2006"),
		Own:     own,
	}
}

func messageViews(thread app.ChatThread, caller domain.User) []messageView {
	names := map[string]string{
		thread.Requester.ID: thread.Requester.Username,
		thread.Owner.ID:     thread.Owner.Username,
	}
	views := make([]messageView, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		views = append(views, newMessageView(msg, names[msg.SenderID], msg.SenderID == caller.ID))
	}
	return views
}

func threadView(thread app.ChatThread, caller domain.User) chatThreadView {
	return chatThreadView{
		Request:  thread.Request,
		Book:     thread.Book,
		Other:    thread.Other.Username,
		Messages: messageViews(thread, caller),
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application errors onto HTTP statuses. Unknown
// errors are logged and reported as a generic 500.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrBookNotFound),
		errors.Is(err, app.ErrRequestNotFound),
		errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNotOwner),
		errors.Is(err, app.ErrChatForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrAlreadyFinalized),
		errors.Is(err, app.ErrChatNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrSelfRequest),
		errors.Is(err, app.ErrSelfWishlist),
		errors.Is(err, app.ErrAlreadySold),
		errors.Is(err, app.ErrDuplicateRequest),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		util.LoggerFromContext(r.Context()).Error("internal error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// isValidationError distinguishes input validation failures (no wrapped
// storage error underneath) from infrastructure failures.
func isValidationError(err error) bool {
	return errors.Unwrap(err) == nil
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
