package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holisticconnect/holisticconnect/internal/platform/db"
)

// PGStore is the PostgreSQL-backed Store implementation.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a credential store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// conn returns the transaction-scoped connection when one is carried in ctx,
// otherwise the shared pool.
func (s *PGStore) conn(ctx context.Context) queryable {
	if q := db.ConnFromContext(ctx); q != nil {
		return q
	}
	return s.pool
}

const credentialCols = `uid, email, password_hash, display_name, email_verified,
	disabled, provider, created_at, updated_at, last_login_at`

func scanCredential(row pgx.Row) (*Credential, error) {
	var c Credential
	err := row.Scan(
		&c.UID, &c.Email, &c.PasswordHash, &c.DisplayName, &c.EmailVerified,
		&c.Disabled, &c.Provider, &c.CreatedAt, &c.UpdatedAt, &c.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const refreshTokenCols = `id, uid, token_hash, expires_at, created_at, revoked_at, replaced_by`

func scanRefreshToken(row pgx.Row) (*RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(
		&t.ID, &t.UID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.RevokedAt, &t.ReplacedBy,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const actionTokenCols = `id, uid, purpose, token_hash, expires_at, consumed_at, created_at`

func scanActionToken(row pgx.Row) (*ActionToken, error) {
	var t ActionToken
	err := row.Scan(
		&t.ID, &t.UID, &t.Purpose, &t.TokenHash, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PGStore) CreateCredential(ctx context.Context, cred *Credential) error {
	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO credentials (uid, email, password_hash, display_name, email_verified,
			disabled, provider, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cred.UID, cred.Email, cred.PasswordHash, cred.DisplayName, cred.EmailVerified,
		cred.Disabled, cred.Provider, cred.CreatedAt, cred.UpdatedAt, cred.LastLoginAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PGStore) GetCredential(ctx context.Context, uid uuid.UUID) (*Credential, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+credentialCols+` FROM credentials WHERE uid = $1`, uid)

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

func (s *PGStore) GetCredentialByEmail(ctx context.Context, email string) (*Credential, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+credentialCols+` FROM credentials WHERE email = $1`, email)

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential by email: %w", err)
	}
	return cred, nil
}

func (s *PGStore) UpdateCredential(ctx context.Context, cred *Credential) error {
	cred.UpdatedAt = time.Now().UTC()

	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE credentials
		SET email = $2, password_hash = $3, display_name = $4, email_verified = $5,
			disabled = $6, provider = $7, updated_at = $8, last_login_at = $9
		WHERE uid = $1`,
		cred.UID, cred.Email, cred.PasswordHash, cred.DisplayName, cred.EmailVerified,
		cred.Disabled, cred.Provider, cred.UpdatedAt, cred.LastLoginAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *PGStore) InsertRefreshToken(ctx context.Context, tok *RefreshToken) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO refresh_tokens (id, uid, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tok.ID, tok.UID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *PGStore) GetRefreshToken(ctx context.Context, hash string) (*RefreshToken, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE token_hash = $1`, hash)

	tok, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return tok, nil
}

// RotateRefreshToken revokes the old token and inserts its replacement in a
// single transaction. The old row is locked to keep concurrent rotations of
// the same token from both succeeding.
func (s *PGStore) RotateRefreshToken(ctx context.Context, oldHash string, next *RefreshToken) error {
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		row := s.conn(ctx).QueryRow(ctx,
			`SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`,
			oldHash)

		old, err := scanRefreshToken(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup refresh token: %w", err)
		}
		if old.RevokedAt != nil {
			return ErrTokenRevoked
		}
		if time.Now().After(old.ExpiresAt) {
			return ErrTokenExpired
		}

		_, err = s.conn(ctx).Exec(ctx, `
			UPDATE refresh_tokens SET revoked_at = NOW(), replaced_by = $2 WHERE id = $1`,
			old.ID, next.ID,
		)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}

		_, err = s.conn(ctx).Exec(ctx, `
			INSERT INTO refresh_tokens (id, uid, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			next.ID, next.UID, next.TokenHash, next.ExpiresAt, next.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert replacement token: %w", err)
		}
		return nil
	})
}

func (s *PGStore) RevokeRefreshTokens(ctx context.Context, uid uuid.UUID) error {
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW() WHERE uid = $1 AND revoked_at IS NULL`,
		uid,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (s *PGStore) InsertActionToken(ctx context.Context, tok *ActionToken) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO action_tokens (id, uid, purpose, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tok.ID, tok.UID, tok.Purpose, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action token: %w", err)
	}
	return nil
}

func (s *PGStore) ConsumeActionToken(ctx context.Context, hash, purpose string) (*ActionToken, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		UPDATE action_tokens SET consumed_at = NOW()
		WHERE token_hash = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()
		RETURNING `+actionTokenCols,
		hash, purpose,
	)

	tok, err := scanActionToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish why the conditional update matched nothing.
		existing := s.conn(ctx).QueryRow(ctx,
			`SELECT `+actionTokenCols+` FROM action_tokens WHERE token_hash = $1 AND purpose = $2`,
			hash, purpose)
		prior, lookupErr := scanActionToken(existing)
		if lookupErr != nil {
			return nil, ErrTokenNotFound
		}
		if prior.ConsumedAt != nil {
			return nil, ErrTokenConsumed
		}
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("consume action token: %w", err)
	}
	return tok, nil
}
