package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vovakirdan/roomchat/internal/store"
)

var (
	// ErrLoginFailed is returned when username/password don't match.
	ErrLoginFailed = errors.New("invalid username or password")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrUnauthenticated means no credential was presented or it is not a token at all.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredential means the token failed signature, expiry or claim checks.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnknownUser means the token is valid but its user no longer exists.
	ErrUnknownUser = errors.New("unknown user")
)

// Usernames must be mentionable with @name, so they are limited to word characters.
var usernamePattern = regexp.MustCompile(`^\w{3,32}$`)

// Service provides account operations and authenticates connections.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, password string) (string, *store.User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return "", nil, ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", nil, ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", nil, err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", nil, ErrUserExists
		}
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrLoginFailed
		}
		return "", nil, fmt.Errorf("get user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", nil, ErrLoginFailed
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Authenticate resolves a bearer credential to its user.
// It fails with ErrUnauthenticated, ErrInvalidCredential or ErrUnknownUser; any
// other error comes from the user store.
func (s *Service) Authenticate(ctx context.Context, credential string) (*store.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := ValidateToken(s.jwtConfig, credential)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownUser, claims.UserID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrUnauthenticated
	}
	return strings.TrimSpace(parts[1]), nil
}
