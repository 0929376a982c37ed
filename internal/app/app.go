package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookswap/internal/store"
	"bookswap/pkg/auth"
	"bookswap/pkg/domain"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	SessionTTL    time.Duration
	Store         store.Store
	Sessions      store.SessionStore
}

// App is the core application service wiring together storage and the
// marketplace domain logic.
type App struct {
	store    store.Store
	sessions store.SessionStore
}

// New constructs the application. Store and Sessions may be supplied
// directly (tests); otherwise they are built from the connection config.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		switch {
		case cfg.JWTSecret != "":
			sessionStore = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL)
		case cfg.RedisAddr != "":
			sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
		default:
			return nil, fmt.Errorf("session store required (jwtSecret or redisAddr)")
		}
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
	}, nil
}

// SignUp registers a new user and issues a session token.
// The first registered user becomes admin.
func (a *App) SignUp(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return domain.User{}, "", errors.New("username and password required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, "", errors.New("username already taken")
	}
	role := domain.RoleUser
	count, err := a.store.UserCount()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, "", errors.New("username already taken")
		}
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", errors.New("invalid credentials")
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// Logout removes a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// FindUserByUsername resolves a user by username.
func (a *App) FindUserByUsername(username string) (domain.User, error) {
	user, ok, err := a.store.GetUserByUsername(strings.TrimSpace(strings.ToLower(username)))
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}
