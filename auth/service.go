package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gasopper/access"
	"gasopper/directory"
)

const tokenTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials signals wrong email or password, or a
	// deactivated account. The cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken signals a token that is malformed, expired, or no
	// longer backed by a live session.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// UserSource is the slice of the directory the authenticator needs.
type UserSource interface {
	Get(ctx context.Context, id int) (directory.User, error)
	GetByEmail(ctx context.Context, email string) (directory.User, error)
	TouchLogin(ctx context.Context, id int) error
}

// Service handles authentication. Each user holds at most one live session;
// a token is only honored while its session row exists and carries the same
// token id.
type Service struct {
	users    UserSource
	sessions SessionRepository
	secret   []byte
}

// LoginResult bundles the signed token and the authenticated user.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      directory.User
}

func NewService(users UserSource, sessions SessionRepository, jwtSecret string) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		secret:   []byte(jwtSecret),
	}
}

// Login authenticates credentials and issues a 24-hour token, replacing any
// previous session for the user.
func (s *Service) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.Active {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	now := time.Now()
	session := Session{
		UserID:    user.ID,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(tokenTTL),
	}

	token, err := s.signToken(user, session)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: sign token: %w", err)
	}

	if err := s.sessions.Upsert(ctx, session); err != nil {
		return LoginResult{}, err
	}
	if err := s.users.TouchLogin(ctx, user.ID); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Token: token, ExpiresAt: session.ExpiresAt, User: user}, nil
}

// Logout revokes the user's session. Tokens signed before the call stop
// verifying immediately.
func (s *Service) Logout(ctx context.Context, userID int) error {
	return s.sessions.Revoke(ctx, userID)
}

// VerifyToken validates signature and expiry, then checks the claim against
// the live session row. A replaced or revoked session fails verification
// even if the token itself is still within its window.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (access.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return access.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return access.Actor{}, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return access.Actor{}, ErrInvalidToken
	}
	roleID, ok := claims["role_id"].(float64)
	if !ok || !access.Role(roleID).Valid() {
		return access.Actor{}, ErrInvalidToken
	}
	tokenID, ok := claims["jti"].(string)
	if !ok {
		return access.Actor{}, ErrInvalidToken
	}

	session, err := s.sessions.Get(ctx, int(userID))
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return access.Actor{}, ErrInvalidToken
		}
		return access.Actor{}, err
	}
	if session.TokenID != tokenID || time.Now().After(session.ExpiresAt) {
		return access.Actor{}, ErrInvalidToken
	}

	return access.Actor{ID: int(userID), Role: access.Role(roleID)}, nil
}

// Me returns the directory record behind an actor.
func (s *Service) Me(ctx context.Context, actor access.Actor) (*directory.User, error) {
	user, err := s.users.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) signToken(user directory.User, session Session) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.RoleID.String(),
		"role_id": int(user.RoleID),
		"jti":     session.TokenID,
		"iat":     session.IssuedAt.Unix(),
		"exp":     session.ExpiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
