package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCredentialNotFound indicates no credential exists for the lookup key.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrEmailTaken indicates a credential already exists for the email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrTokenNotFound indicates the token hash matches nothing in the store.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenRevoked indicates the refresh token was revoked or rotated away.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenExpired indicates the token passed its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenConsumed indicates a single-use action token was already spent.
	ErrTokenConsumed = errors.New("token already used")
)

// Credential providers.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google.com"
)

// Action token purposes.
const (
	PurposeVerifyEmail   = "verify_email"
	PurposePasswordReset = "reset_password"
)

// Credential is an identity record. PasswordHash is empty for federated-only
// credentials.
type Credential struct {
	UID           uuid.UUID
	Email         string
	PasswordHash  string
	DisplayName   string
	EmailVerified bool
	Disabled      bool
	Provider      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// RefreshToken is a long-lived session token. Only the SHA-256 hash of the
// raw value is stored. Rotation revokes the old row and records its successor
// in ReplacedBy.
type RefreshToken struct {
	ID         uuid.UUID
	UID        uuid.UUID
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}

// ActionToken backs single-use email links: verification and password reset.
type ActionToken struct {
	ID         uuid.UUID
	UID        uuid.UUID
	Purpose    string
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Store defines the persistence contract for credentials and session tokens.
// Implementations may be backed by in-memory maps or a relational database.
type Store interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, uid uuid.UUID) (*Credential, error)
	GetCredentialByEmail(ctx context.Context, email string) (*Credential, error)
	UpdateCredential(ctx context.Context, cred *Credential) error

	InsertRefreshToken(ctx context.Context, tok *RefreshToken) error
	GetRefreshToken(ctx context.Context, hash string) (*RefreshToken, error)
	// RotateRefreshToken atomically revokes the token identified by oldHash
	// and inserts next as its replacement. It fails when the old token is
	// unknown, revoked, or expired.
	RotateRefreshToken(ctx context.Context, oldHash string, next *RefreshToken) error
	RevokeRefreshTokens(ctx context.Context, uid uuid.UUID) error

	InsertActionToken(ctx context.Context, tok *ActionToken) error
	// ConsumeActionToken marks the matching unconsumed, unexpired token as
	// spent and returns it.
	ConsumeActionToken(ctx context.Context, hash, purpose string) (*ActionToken, error)
}

// InMemoryStore provides a thread-safe in-memory implementation of Store. It
// is suitable for development, testing, and single-node deployments.
type InMemoryStore struct {
	mu           sync.RWMutex
	credsByUID   map[uuid.UUID]*Credential
	uidByEmail   map[string]uuid.UUID
	refreshByKey map[string]*RefreshToken
	actionByKey  map[string]*ActionToken
}

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		credsByUID:   make(map[uuid.UUID]*Credential),
		uidByEmail:   make(map[string]uuid.UUID),
		refreshByKey: make(map[string]*RefreshToken),
		actionByKey:  make(map[string]*ActionToken),
	}
}

func copyCredential(c *Credential) *Credential {
	cp := *c
	if c.LastLoginAt != nil {
		t := *c.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

func copyRefreshToken(t *RefreshToken) *RefreshToken {
	cp := *t
	if t.RevokedAt != nil {
		ts := *t.RevokedAt
		cp.RevokedAt = &ts
	}
	if t.ReplacedBy != nil {
		id := *t.ReplacedBy
		cp.ReplacedBy = &id
	}
	return &cp
}

func (s *InMemoryStore) CreateCredential(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.uidByEmail[cred.Email]; taken {
		return ErrEmailTaken
	}
	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	cp := copyCredential(cred)
	s.credsByUID[cp.UID] = cp
	s.uidByEmail[cp.Email] = cp.UID
	return nil
}

func (s *InMemoryStore) GetCredential(_ context.Context, uid uuid.UUID) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credsByUID[uid]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return copyCredential(c), nil
}

func (s *InMemoryStore) GetCredentialByEmail(_ context.Context, email string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, ok := s.uidByEmail[email]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	c, ok := s.credsByUID[uid]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return copyCredential(c), nil
}

func (s *InMemoryStore) UpdateCredential(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.credsByUID[cred.UID]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.CreatedAt = existing.CreatedAt
	cred.UpdatedAt = time.Now().UTC()

	cp := copyCredential(cred)
	if existing.Email != cp.Email {
		delete(s.uidByEmail, existing.Email)
		s.uidByEmail[cp.Email] = cp.UID
	}
	s.credsByUID[cp.UID] = cp
	return nil
}

func (s *InMemoryStore) InsertRefreshToken(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshByKey[tok.TokenHash] = copyRefreshToken(tok)
	return nil
}

func (s *InMemoryStore) GetRefreshToken(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refreshByKey[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyRefreshToken(t), nil
}

func (s *InMemoryStore) RotateRefreshToken(_ context.Context, oldHash string, next *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refreshByKey[oldHash]
	if !ok {
		return ErrTokenNotFound
	}
	if old.RevokedAt != nil {
		return ErrTokenRevoked
	}
	if time.Now().After(old.ExpiresAt) {
		return ErrTokenExpired
	}

	now := time.Now().UTC()
	old.RevokedAt = &now
	replaced := next.ID
	old.ReplacedBy = &replaced

	s.refreshByKey[next.TokenHash] = copyRefreshToken(next)
	return nil
}

func (s *InMemoryStore) RevokeRefreshTokens(_ context.Context, uid uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, t := range s.refreshByKey {
		if t.UID == uid && t.RevokedAt == nil {
			revoked := now
			t.RevokedAt = &revoked
		}
	}
	return nil
}

func (s *InMemoryStore) InsertActionToken(_ context.Context, tok *ActionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tok
	s.actionByKey[tok.TokenHash] = &cp
	return nil
}

func (s *InMemoryStore) ConsumeActionToken(_ context.Context, hash, purpose string) (*ActionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.actionByKey[hash]
	if !ok || t.Purpose != purpose {
		return nil, ErrTokenNotFound
	}
	if t.ConsumedAt != nil {
		return nil, ErrTokenConsumed
	}
	if time.Now().After(t.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	now := time.Now().UTC()
	t.ConsumedAt = &now
	cp := *t
	return &cp, nil
}

// ActiveRefreshTokens returns the unrevoked tokens for uid ordered by
// creation time. Test helper.
func (s *InMemoryStore) ActiveRefreshTokens(uid uuid.UUID) []*RefreshToken {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*RefreshToken
	for _, t := range s.refreshByKey {
		if t.UID == uid && t.RevokedAt == nil {
			active = append(active, copyRefreshToken(t))
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active
}
