// Package auth handles passwords, session tokens and account creation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"operador/internal/domain"
	"operador/internal/events"
	"operador/internal/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email")
)

type UserStore interface {
	CreateUser(ctx context.Context, u domain.User, evt domain.Event) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	TouchSignIn(ctx context.Context, id int64, at string) error
}

// MissionSeeder creates the mission chain for a new account.
type MissionSeeder interface {
	InitializeUser(ctx context.Context, userID int64) ([]domain.Mission, error)
}

type Session struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type Accounts struct {
	Users    UserStore
	Missions MissionSeeder
	Tokens   Tokens
	Now      func() time.Time
}

func (a Accounts) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a Accounts) Signup(ctx context.Context, email, password, name string) (Session, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return Session{}, ErrInvalidEmail
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	now := a.now()
	u := domain.User{
		Email:        addr.Address,
		Name:         strings.TrimSpace(name),
		Role:         "user",
		PasswordHash: hash,
		CreatedAt:    now.UTC().Format(time.RFC3339),
		LastSignedIn: now.UTC().Format(time.RFC3339),
	}
	evt := events.New(now, events.UserSignedUp, 0, "user", nil, events.EventPayload{"email": addr.Address})
	u, err = a.Users.CreateUser(ctx, u, evt)
	if errors.Is(err, repo.ErrConflict) {
		return Session{}, ErrEmailTaken
	}
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	if a.Missions != nil {
		if _, err := a.Missions.InitializeUser(ctx, u.ID); err != nil {
			return Session{}, fmt.Errorf("initialize missions: %w", err)
		}
	}
	if err := a.Users.TouchSignIn(ctx, u.ID, u.LastSignedIn); err != nil {
		return Session{}, err
	}
	return a.session(u)
}

func (a Accounts) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := a.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	u.LastSignedIn = a.now().UTC().Format(time.RFC3339)
	if err := a.Users.TouchSignIn(ctx, u.ID, u.LastSignedIn); err != nil {
		return Session{}, err
	}
	return a.session(u)
}

func (a Accounts) session(u domain.User) (Session, error) {
	token, exp, err := a.Tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: exp}, nil
}
