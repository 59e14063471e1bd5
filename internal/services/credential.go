package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 64
	// bcrypt only looks at the first 72 bytes of its input.
	maxPasswordBytes = 72
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// TokenIssuer signs a bearer token for an authenticated user.
type TokenIssuer interface {
	Issue(user types.User) (string, time.Time, error)
}

// EventEmitter receives domain events after a write commits.
type EventEmitter interface {
	Emit(ctx context.Context, eventType types.EventType, userID, taskID int)
}

// PasswordPolicy bounds acceptable passwords. Passwords must be non-empty,
// at least MinLength bytes, and at most 72 bytes.
type PasswordPolicy struct {
	MinLength int
}

func (p PasswordPolicy) Validate(password string) error {
	minLength := p.MinLength
	if minLength < 1 {
		minLength = 1
	}
	switch {
	case password == "":
		return fmt.Errorf("%w: password is required", ErrValidation)
	case len(password) < minLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minLength)
	case len(password) > maxPasswordBytes:
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordBytes)
	}
	return nil
}

// Token is a signed bearer token and the instant it stops being accepted.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// CredentialService registers users and authenticates logins.
type CredentialService struct {
	users     UserRepository
	tokens    TokenIssuer
	cost      int
	policy    PasswordPolicy
	events    EventEmitter
	dummyHash []byte
}

// NewCredentialService validates the bcrypt cost by hashing a throwaway
// password. That hash is compared against on logins for unknown users so
// both failure paths do the same amount of work.
func NewCredentialService(users UserRepository, tokens TokenIssuer, cost int, policy PasswordPolicy, events EventEmitter) (*CredentialService, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("taskboard-timing-equaliser"), cost)
	if err != nil {
		return nil, fmt.Errorf("invalid bcrypt cost %d: %w", cost, err)
	}
	return &CredentialService{
		users:     users,
		tokens:    tokens,
		cost:      cost,
		policy:    policy,
		events:    events,
		dummyHash: dummy,
	}, nil
}

// Register creates an account with role "User". The plaintext password is
// hashed here exactly once.
func (s *CredentialService) Register(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return types.User{}, fmt.Errorf("%w: username must be at most %d characters", ErrValidation, maxUsernameLength)
	}
	if err := s.policy.Validate(password); err != nil {
		return types.User{}, err
	}

	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}
	if exists {
		return types.User{}, ErrDuplicateUser
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     username,
		Role:         types.DefaultRole,
		PasswordHash: string(hashed),
	})
	if err != nil {
		// Lost a race with a concurrent registration; the unique index decided.
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrDuplicateUser
		}
		return types.User{}, err
	}

	s.emit(ctx, types.EventUserRegistered, user.ID)
	return user, nil
}

// Login verifies the password and issues a token. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *CredentialService) Login(ctx context.Context, username, password string) (Token, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	value, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: value, ExpiresAt: expiresAt}, nil
}

// CurrentUser loads the account behind an authenticated identity.
func (s *CredentialService) CurrentUser(ctx context.Context, id int) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *CredentialService) emit(ctx context.Context, eventType types.EventType, userID int) {
	if s.events != nil {
		s.events.Emit(ctx, eventType, userID, 0)
	}
}
