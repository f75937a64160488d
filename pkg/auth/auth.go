// Package auth registers actors, checks passwords and issues HS256 tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	jose "github.com/dvsekhvalnov/jose2go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"project-api/pkg/actor"
	"project-api/pkg/apperr"
)

// Token types.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

const minPasswordLen = 8

// Claims is the JWT payload.
type Claims struct {
	Subject   string `json:"sub"`
	Type      string `json:"typ"`
	Version   int    `json:"ver"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	ID        string `json:"jti"`
}

// Tokens is an access/refresh pair.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Config holds the token settings.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

// Registration is the input to Register.
type Registration struct {
	Email           string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
	Phone           string
}

// Service authenticates actors.
type Service struct {
	actors     actor.Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	cost       int
	now        func() time.Time
}

// NewService creates a Service. The secret must be set.
func NewService(actors actor.Store, cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret not set")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		actors:     actors,
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		cost:       cfg.BcryptCost,
		now:        time.Now,
	}, nil
}

// Register validates r and creates an active actor.
func (s *Service) Register(ctx context.Context, r Registration) (*actor.Actor, error) {
	return Register(ctx, s.actors, r, s.cost)
}

// Register validates r and creates an active actor in actors, hashing the
// password with the given bcrypt cost (0 for the default). It needs no
// token secret.
func Register(ctx context.Context, actors actor.Store, r Registration, cost int) (*actor.Actor, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	email := actor.NormalizeEmail(r.Email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, apperr.Invalid("a valid email is required")
	}
	if len(r.Password) < minPasswordLen {
		return nil, apperr.Invalid("password must be at least %d characters", minPasswordLen)
	}
	if r.Password != r.PasswordConfirm {
		return nil, apperr.Invalid("passwords do not match")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return actors.Register(ctx, &actor.Actor{
		Email:        email,
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		Phone:        strings.TrimSpace(r.Phone),
		PasswordHash: string(hash),
		Active:       true,
	})
}

// Login checks the credentials and issues a token pair. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Tokens, *actor.Actor, error) {
	a, err := s.actors.ByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, nil, fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	}
	if !a.Active {
		return nil, nil, fmt.Errorf("account disabled: %w", apperr.ErrUnauthorized)
	}

	access, err := s.issue(a, TypeAccess, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := s.issue(a, TypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, nil, err
	}
	return &Tokens{Access: access, Refresh: refresh}, a, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refresh string) (string, error) {
	a, err := s.verify(ctx, refresh, TypeRefresh)
	if err != nil {
		return "", err
	}
	return s.issue(a, TypeAccess, s.accessTTL)
}

// Authenticate resolves an access token to its actor.
func (s *Service) Authenticate(ctx context.Context, access string) (*actor.Actor, error) {
	return s.verify(ctx, access, TypeAccess)
}

// Logout revokes every token issued to the actor so far.
func (s *Service) Logout(ctx context.Context, actorID string) error {
	_, err := s.actors.BumpTokenVersion(ctx, actorID)
	return err
}

func (s *Service) issue(a *actor.Actor, typ string, ttl time.Duration) (string, error) {
	now := s.now()
	payload, err := json.Marshal(Claims{
		Subject:   a.ID,
		Type:      typ,
		Version:   a.TokenVersion,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		ID:        uuid.NewString(),
	})
	if err != nil {
		return "", err
	}
	token, err := jose.Sign(string(payload), jose.HS256, s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return token, nil
}

func (s *Service) verify(ctx context.Context, token, typ string) (*actor.Actor, error) {
	payload, headers, err := jose.Decode(token, s.secret)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", apperr.ErrUnauthorized)
	}
	if alg, _ := headers["alg"].(string); alg != jose.HS256 {
		return nil, fmt.Errorf("token algorithm %q: %w", alg, apperr.ErrUnauthorized)
	}
	var c Claims
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("parse claims: %w", apperr.ErrUnauthorized)
	}
	if c.Type != typ {
		return nil, fmt.Errorf("expected %s token: %w", typ, apperr.ErrUnauthorized)
	}
	if s.now().Unix() >= c.ExpiresAt {
		return nil, fmt.Errorf("token expired: %w", apperr.ErrUnauthorized)
	}

	a, err := s.actors.Get(ctx, c.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("unknown subject: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !a.Active || a.TokenVersion != c.Version {
		return nil, fmt.Errorf("token revoked: %w", apperr.ErrUnauthorized)
	}
	return a, nil
}
