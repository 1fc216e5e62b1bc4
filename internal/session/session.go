package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"queuehive/internal/models"
)

// Persisted keys. Every key is written on login and removed together on
// logout or expiry.
const (
	KeyToken     = "token"
	KeyRole      = "userRole"
	KeyUserID    = "userId"
	KeyCompanyID = "companyId"
	KeyFullName  = "fullName"
	KeyExpiresAt = "expiresAt"
)

var Keys = []string{KeyToken, KeyRole, KeyUserID, KeyCompanyID, KeyFullName, KeyExpiresAt}

// Backend persists the session record. Clear must remove every key in one
// operation.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
	Clear(ctx context.Context) error
}

// Identity is the read-only projection handed to consumers.
type Identity struct {
	Token     string
	Role      models.Role
	UserID    int64
	CompanyID int64
	FullName  string
	ExpiresAt time.Time
}

func (i Identity) HasCompany() bool {
	return i.CompanyID > 0
}

func (i Identity) expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Store owns the process-wide identity. It is only changed through Init,
// Login, Logout and UpdateProfile.
type Store struct {
	backend Backend
	now     func() time.Time

	mu       sync.RWMutex
	identity Identity
	loaded   bool
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted session. A record that is expired or cannot be
// decoded is cleared and the store starts unauthenticated.
func (s *Store) Init(ctx context.Context) error {
	values, err := s.backend.Load(ctx)
	if errors.Is(err, ErrCorrupt) {
		log.Warn().Err(err).Msg("clearing unreadable session")
		values = nil
		if err := s.backend.Clear(ctx); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = Identity{}
	s.loaded = false

	if values[KeyToken] == "" {
		return nil
	}
	identity, err := decode(values)
	if err != nil || identity.expired(s.now()) {
		reason := "expired"
		if err != nil {
			reason = err.Error()
		}
		log.Info().Str("reason", reason).Msg("clearing stored session")
		if clearErr := s.backend.Clear(ctx); clearErr != nil {
			return fmt.Errorf("clear session: %w", clearErr)
		}
		return nil
	}
	s.identity = identity
	s.loaded = true
	return nil
}

// Login stores the credential returned by the backend. Expiry and, when the
// response omits it, the role are read from the token claims.
func (s *Store) Login(ctx context.Context, resp models.LoginResponse, fullName string) (Identity, error) {
	claims, err := parseClaims(resp.Token)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{
		Token:     resp.Token,
		Role:      resp.Role,
		UserID:    resp.UserID,
		FullName:  fullName,
		ExpiresAt: claims.expiresAt,
	}
	if resp.CompanyID != nil {
		identity.CompanyID = *resp.CompanyID
	}
	if identity.Role == "" {
		identity.Role = claims.role
	}
	if identity.Role == "" {
		return Identity{}, fmt.Errorf("%w: missing role", ErrInvalidCredential)
	}
	if identity.expired(s.now()) {
		return Identity{}, ErrExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(ctx, encode(identity)); err != nil {
		return Identity{}, fmt.Errorf("save session: %w", err)
	}
	s.identity = identity
	s.loaded = true
	return identity, nil
}

func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = Identity{}
	s.loaded = false
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNoSession
	}
	updated := s.identity
	updated.FullName = fullName
	if err := s.backend.Save(ctx, encode(updated)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.identity = updated
	return nil
}

// Current returns the identity when a session exists and has not expired.
func (s *Store) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded || s.identity.expired(s.now()) {
		return Identity{}, false
	}
	return s.identity, true
}

// BearerToken is the credential provider for the REST client.
func (s *Store) BearerToken() string {
	identity, ok := s.Current()
	if !ok {
		return ""
	}
	return identity.Token
}

type tokenClaims struct {
	expiresAt time.Time
	role      models.Role
}

func parseClaims(raw string) (tokenClaims, error) {
	if raw == "" {
		return tokenClaims{}, ErrInvalidCredential
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return tokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	var out tokenClaims
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return tokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if exp != nil {
		out.expiresAt = exp.Time
	}
	if raw, ok := claims["role"].(string); ok {
		out.role, _ = models.ParseRole(raw)
	}
	return out, nil
}

func encode(identity Identity) map[string]string {
	values := map[string]string{
		KeyToken:     identity.Token,
		KeyRole:      string(identity.Role),
		KeyUserID:    strconv.FormatInt(identity.UserID, 10),
		KeyCompanyID: "",
		KeyFullName:  identity.FullName,
		KeyExpiresAt: "",
	}
	if identity.CompanyID > 0 {
		values[KeyCompanyID] = strconv.FormatInt(identity.CompanyID, 10)
	}
	if !identity.ExpiresAt.IsZero() {
		values[KeyExpiresAt] = strconv.FormatInt(identity.ExpiresAt.Unix(), 10)
	}
	return values
}

func decode(values map[string]string) (Identity, error) {
	identity := Identity{Token: values[KeyToken], FullName: values[KeyFullName]}
	role, ok := models.ParseRole(values[KeyRole])
	if !ok {
		return Identity{}, fmt.Errorf("unknown role %q", values[KeyRole])
	}
	identity.Role = role

	userID, err := strconv.ParseInt(values[KeyUserID], 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid user id: %w", err)
	}
	identity.UserID = userID

	if raw := values[KeyCompanyID]; raw != "" {
		companyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("invalid company id: %w", err)
		}
		identity.CompanyID = companyID
	}

	if raw := values[KeyExpiresAt]; raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("invalid expiry: %w", err)
		}
		identity.ExpiresAt = time.Unix(unix, 0)
	} else {
		claims, err := parseClaims(identity.Token)
		if err != nil {
			return Identity{}, err
		}
		identity.ExpiresAt = claims.expiresAt
	}
	return identity, nil
}
