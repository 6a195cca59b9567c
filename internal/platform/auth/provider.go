package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultActionTTL  = time.Hour

	maxLoginFailures   = 5
	loginFailureWindow = 15 * time.Minute
)

// RoleResolver looks up the durable role for a user. The provider treats a
// lookup failure as "client": tokens are issued with the default role and the
// real role surfaces on the next resolution.
type RoleResolver interface {
	RoleOf(ctx context.Context, uid uuid.UUID) (string, error)
}

// RoleResolverFunc adapts a function to the RoleResolver interface.
type RoleResolverFunc func(ctx context.Context, uid uuid.UUID) (string, error)

func (f RoleResolverFunc) RoleOf(ctx context.Context, uid uuid.UUID) (string, error) {
	return f(ctx, uid)
}

// ActionMailer delivers account emails carrying single-use action tokens.
type ActionMailer interface {
	SendVerificationEmail(ctx context.Context, email, displayName, token string) error
	SendPasswordResetEmail(ctx context.Context, email, displayName, token string) error
}

// FederatedIdentity is the verified payload of a federated ID token.
type FederatedIdentity struct {
	Subject       string
	Email         string
	DisplayName   string
	EmailVerified bool
}

// FederatedVerifier validates a federated provider's ID token and returns the
// identity it asserts.
type FederatedVerifier interface {
	Verify(ctx context.Context, idToken string) (*FederatedIdentity, error)
}

// Session is the result of a successful authentication.
type Session struct {
	UID          uuid.UUID `json:"uid"`
	Role         string    `json:"role"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
}

// SessionEvent signals a session lifecycle change to registered observers.
type SessionEvent struct {
	UID     uuid.UUID
	Started bool
}

// ProviderConfig carries the provider tunables.
type ProviderConfig struct {
	RefreshTTL time.Duration
	ActionTTL  time.Duration
}

type loginAttempts struct {
	failures int
	first    time.Time
}

// Provider implements credential authentication: password and federated
// sign-in, token refresh with rotation, and the email action flows.
type Provider struct {
	store    Store
	tokens   *TokenManager
	mailer   ActionMailer
	roles    RoleResolver
	verifier FederatedVerifier
	log      zerolog.Logger

	refreshTTL time.Duration
	actionTTL  time.Duration

	attemptsMu sync.Mutex
	attempts   map[string]*loginAttempts

	listenersMu sync.RWMutex
	listeners   []func(SessionEvent)
}

// NewProvider creates an authentication provider. mailer, roles, and verifier
// may be nil: emails are then skipped, every token carries the default client
// role, and federated sign-in is rejected.
func NewProvider(store Store, tokens *TokenManager, mailer ActionMailer, roles RoleResolver, verifier FederatedVerifier, log zerolog.Logger, cfg ProviderConfig) *Provider {
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.ActionTTL <= 0 {
		cfg.ActionTTL = defaultActionTTL
	}
	return &Provider{
		store:      store,
		tokens:     tokens,
		mailer:     mailer,
		roles:      roles,
		verifier:   verifier,
		log:        log,
		refreshTTL: cfg.RefreshTTL,
		actionTTL:  cfg.ActionTTL,
		attempts:   make(map[string]*loginAttempts),
	}
}

// OnSessionChange registers an observer for session lifecycle events.
// Observers run synchronously on the authentication path and must not block.
func (p *Provider) OnSessionChange(fn func(SessionEvent)) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Provider) emit(ev SessionEvent) {
	p.listenersMu.RLock()
	defer p.listenersMu.RUnlock()
	for _, fn := range p.listeners {
		fn(ev)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// resolveRole returns the durable role for uid, defaulting to RoleClient when
// no resolver is configured or the lookup fails. The default keeps token issue
// available while the user record is still being written or the user store is
// unreachable.
func (p *Provider) resolveRole(ctx context.Context, uid uuid.UUID) string {
	if p.roles == nil {
		return RoleClient
	}
	role, err := p.roles.RoleOf(ctx, uid)
	if err != nil || role == "" {
		if err != nil {
			p.log.Warn().Err(err).Str("uid", uid.String()).Msg("role lookup failed, defaulting to client")
		}
		return RoleClient
	}
	return role
}

func (p *Provider) issueSession(ctx context.Context, cred *Credential) (*Session, error) {
	role := p.resolveRole(ctx, cred.UID)

	access, err := p.tokens.MakeAccessToken(cred.UID.String(), role)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	raw, hash, err := NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	now := time.Now().UTC()
	refresh := &RefreshToken{
		ID:        uuid.New(),
		UID:       cred.UID,
		TokenHash: hash,
		ExpiresAt: now.Add(p.refreshTTL),
		CreatedAt: now,
	}
	if err := p.store.InsertRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Session{
		UID:          cred.UID,
		Role:         role,
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(p.tokens.accessTTL.Seconds()),
	}, nil
}

// SignUp registers a password credential and starts a session. The first
// access token always carries the client role: the durable role record does
// not exist yet when the token is minted.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, NewError(CodeInvalidEmail, nil)
	}
	if len(password) < MinPasswordLength {
		return nil, NewError(CodeWeakPassword, nil)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	cred := &Credential{
		UID:          uuid.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		Provider:     ProviderPassword,
	}
	if err := p.store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, NewError(CodeEmailAlreadyInUse, err)
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}

	sess, err := p.issueSession(ctx, cred)
	if err != nil {
		return nil, err
	}
	p.emit(SessionEvent{UID: cred.UID, Started: true})
	return sess, nil
}

func (p *Provider) throttled(email string) bool {
	p.attemptsMu.Lock()
	defer p.attemptsMu.Unlock()

	a, ok := p.attempts[email]
	if !ok {
		return false
	}
	if time.Since(a.first) > loginFailureWindow {
		delete(p.attempts, email)
		return false
	}
	return a.failures >= maxLoginFailures
}

func (p *Provider) recordFailure(email string) {
	p.attemptsMu.Lock()
	defer p.attemptsMu.Unlock()

	a, ok := p.attempts[email]
	if !ok || time.Since(a.first) > loginFailureWindow {
		p.attempts[email] = &loginAttempts{failures: 1, first: time.Now()}
		return
	}
	a.failures++
}

func (p *Provider) clearFailures(email string) {
	p.attemptsMu.Lock()
	defer p.attemptsMu.Unlock()
	delete(p.attempts, email)
}

// SignIn authenticates a password credential and starts a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if p.throttled(email) {
		return nil, NewError(CodeTooManyRequests, nil)
	}

	cred, err := p.store.GetCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			p.recordFailure(email)
			return nil, NewError(CodeUserNotFound, err)
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}
	if cred.Disabled {
		return nil, NewError(CodeUserDisabled, nil)
	}
	if cred.PasswordHash == "" || !CheckPassword(cred.PasswordHash, password) {
		p.recordFailure(email)
		return nil, NewError(CodeWrongPassword, nil)
	}
	p.clearFailures(email)

	now := time.Now().UTC()
	cred.LastLoginAt = &now
	if err := p.store.UpdateCredential(ctx, cred); err != nil {
		p.log.Warn().Err(err).Str("uid", cred.UID.String()).Msg("failed to record last login")
	}

	sess, err := p.issueSession(ctx, cred)
	if err != nil {
		return nil, err
	}
	p.emit(SessionEvent{UID: cred.UID, Started: true})
	return sess, nil
}

// FederatedSignIn validates a federated ID token, provisioning a credential
// on first sign-in. The second return reports whether the credential was just
// created, so callers can finish first-time account setup.
func (p *Provider) FederatedSignIn(ctx context.Context, idToken string) (*Session, bool, error) {
	if p.verifier == nil {
		return nil, false, NewError(CodeInvalidCredential, errors.New("no federated verifier configured"))
	}
	ident, err := p.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, false, NewError(CodeInvalidCredential, err)
	}

	email := normalizeEmail(ident.Email)
	if !validEmail(email) {
		return nil, false, NewError(CodeInvalidEmail, nil)
	}

	firstSignIn := false
	cred, err := p.store.GetCredentialByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		cred = &Credential{
			UID:           uuid.New(),
			Email:         email,
			DisplayName:   strings.TrimSpace(ident.DisplayName),
			EmailVerified: ident.EmailVerified,
			Provider:      ProviderGoogle,
		}
		if err := p.store.CreateCredential(ctx, cred); err != nil {
			return nil, false, fmt.Errorf("provision federated credential: %w", err)
		}
		firstSignIn = true
	case err != nil:
		return nil, false, fmt.Errorf("lookup credential: %w", err)
	case cred.Disabled:
		return nil, false, NewError(CodeUserDisabled, nil)
	}

	now := time.Now().UTC()
	cred.LastLoginAt = &now
	if err := p.store.UpdateCredential(ctx, cred); err != nil {
		p.log.Warn().Err(err).Str("uid", cred.UID.String()).Msg("failed to record last login")
	}

	sess, err := p.issueSession(ctx, cred)
	if err != nil {
		return nil, false, err
	}
	p.emit(SessionEvent{UID: cred.UID, Started: true})
	return sess, firstSignIn, nil
}

// Refresh rotates a refresh token and mints a new access token. The role
// claim is re-resolved on every refresh, so a role recorded after sign-up
// reaches the token within one refresh cycle.
func (p *Provider) Refresh(ctx context.Context, rawRefresh string) (*Session, error) {
	hash := HashOpaqueToken(rawRefresh)

	old, err := p.store.GetRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, NewError(CodeInvalidCredential, err)
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	cred, err := p.store.GetCredential(ctx, old.UID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, NewError(CodeInvalidCredential, err)
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}
	if cred.Disabled {
		return nil, NewError(CodeUserDisabled, nil)
	}

	raw, nextHash, err := NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	now := time.Now().UTC()
	next := &RefreshToken{
		ID:        uuid.New(),
		UID:       old.UID,
		TokenHash: nextHash,
		ExpiresAt: now.Add(p.refreshTTL),
		CreatedAt: now,
	}

	if err := p.store.RotateRefreshToken(ctx, hash, next); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			// A revoked token presented again means the raw value leaked or
			// two clients hold the same session. Cut every session for the
			// user and force a fresh sign-in.
			p.log.Warn().Str("uid", old.UID.String()).Msg("revoked refresh token reused, revoking all sessions")
			if revokeErr := p.store.RevokeRefreshTokens(ctx, old.UID); revokeErr != nil {
				p.log.Error().Err(revokeErr).Str("uid", old.UID.String()).Msg("failed to revoke sessions after token reuse")
			}
			return nil, NewError(CodeInvalidCredential, err)
		}
		if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenExpired) {
			return nil, NewError(CodeInvalidCredential, err)
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	role := p.resolveRole(ctx, cred.UID)
	access, err := p.tokens.MakeAccessToken(cred.UID.String(), role)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	return &Session{
		UID:          cred.UID,
		Role:         role,
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(p.tokens.accessTTL.Seconds()),
	}, nil
}

// SignOut revokes every refresh token for the user.
func (p *Provider) SignOut(ctx context.Context, uid uuid.UUID) error {
	if err := p.store.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	p.emit(SessionEvent{UID: uid, Started: false})
	return nil
}

// CurrentUser returns the session profile for uid.
func (p *Provider) CurrentUser(ctx context.Context, uid uuid.UUID) (*SessionUser, error) {
	cred, err := p.store.GetCredential(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, NewError(CodeUserNotFound, err)
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}
	return &SessionUser{
		UID:           cred.UID,
		Email:         cred.Email,
		DisplayName:   cred.DisplayName,
		EmailVerified: cred.EmailVerified,
	}, nil
}

func (p *Provider) mintActionToken(ctx context.Context, uid uuid.UUID, purpose string) (string, error) {
	raw, hash, err := NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("mint action token: %w", err)
	}
	now := time.Now().UTC()
	tok := &ActionToken{
		ID:        uuid.New(),
		UID:       uid,
		Purpose:   purpose,
		TokenHash: hash,
		ExpiresAt: now.Add(p.actionTTL),
		CreatedAt: now,
	}
	if err := p.store.InsertActionToken(ctx, tok); err != nil {
		return "", fmt.Errorf("store action token: %w", err)
	}
	return raw, nil
}

// SendVerificationEmail issues a verify-email action token and mails it.
func (p *Provider) SendVerificationEmail(ctx context.Context, uid uuid.UUID) error {
	cred, err := p.store.GetCredential(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return NewError(CodeUserNotFound, err)
		}
		return fmt.Errorf("lookup credential: %w", err)
	}

	raw, err := p.mintActionToken(ctx, uid, PurposeVerifyEmail)
	if err != nil {
		return err
	}
	if p.mailer == nil {
		p.log.Debug().Str("uid", uid.String()).Msg("no mailer configured, skipping verification email")
		return nil
	}
	if err := p.mailer.SendVerificationEmail(ctx, cred.Email, cred.DisplayName, raw); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// ConfirmVerifyEmail consumes a verify-email token and marks the credential
// verified.
func (p *Provider) ConfirmVerifyEmail(ctx context.Context, rawToken string) error {
	tok, err := p.store.ConsumeActionToken(ctx, HashOpaqueToken(rawToken), PurposeVerifyEmail)
	if err != nil {
		return actionTokenError(err)
	}

	cred, err := p.store.GetCredential(ctx, tok.UID)
	if err != nil {
		return fmt.Errorf("lookup credential: %w", err)
	}
	cred.EmailVerified = true
	if err := p.store.UpdateCredential(ctx, cred); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a password-reset action token and mails it.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	cred, err := p.store.GetCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return NewError(CodeUserNotFound, err)
		}
		return fmt.Errorf("lookup credential: %w", err)
	}

	raw, err := p.mintActionToken(ctx, cred.UID, PurposePasswordReset)
	if err != nil {
		return err
	}
	if p.mailer == nil {
		p.log.Debug().Str("uid", cred.UID.String()).Msg("no mailer configured, skipping password reset email")
		return nil
	}
	if err := p.mailer.SendPasswordResetEmail(ctx, cred.Email, cred.DisplayName, raw); err != nil {
		return fmt.Errorf("send password reset email: %w", err)
	}
	return nil
}

// ConfirmPasswordReset consumes a password-reset token, replaces the password
// hash, and revokes every open session for the user.
func (p *Provider) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return NewError(CodeWeakPassword, nil)
	}

	tok, err := p.store.ConsumeActionToken(ctx, HashOpaqueToken(rawToken), PurposePasswordReset)
	if err != nil {
		return actionTokenError(err)
	}

	cred, err := p.store.GetCredential(ctx, tok.UID)
	if err != nil {
		return fmt.Errorf("lookup credential: %w", err)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	cred.PasswordHash = hash
	if err := p.store.UpdateCredential(ctx, cred); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := p.store.RevokeRefreshTokens(ctx, tok.UID); err != nil {
		p.log.Warn().Err(err).Str("uid", tok.UID.String()).Msg("failed to revoke sessions after password reset")
	}
	return nil
}

func actionTokenError(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return NewError(CodeExpiredActionCode, err)
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenConsumed):
		return NewError(CodeInvalidActionCode, err)
	default:
		return fmt.Errorf("consume action token: %w", err)
	}
}
