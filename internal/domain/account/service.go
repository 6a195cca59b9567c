// Package account orchestrates registration and sign-in across the identity
// provider and the profile repositories. The credential is the source of
// truth; profile steps that fail after it exists are reported as warnings,
// never rolled back.
package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/holisticconnect/holisticconnect/internal/domain/practitioner"
	"github.com/holisticconnect/holisticconnect/internal/domain/user"
	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
	"github.com/holisticconnect/holisticconnect/internal/platform/db"
)

// Landing destinations after authentication.
const (
	LandingClient       = "/client"
	LandingPractitioner = "/practitioner"
	LandingFallback     = "/dashboard"
)

// ErrInvalidRole rejects sign-up requests naming a role outside the
// vocabulary.
var ErrInvalidRole = errors.New("invalid role")

// SignUpRequest is the payload of POST /auth/signup.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// AuthResponse carries the session token pair, the landing redirect, and any
// non-fatal warnings from the profile steps.
type AuthResponse struct {
	UID          uuid.UUID `json:"uid"`
	Role         string    `json:"role"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	Redirect     string    `json:"redirect"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// DashboardInfo is served on the generic landing. Redirect names the
// role-specific destination when the profile resolves, and stays empty when
// the dashboard is as far as routing can go.
type DashboardInfo struct {
	UID      uuid.UUID `json:"uid"`
	Role     string    `json:"role,omitempty"`
	Redirect string    `json:"redirect,omitempty"`
}

type Service struct {
	provider      *auth.Provider
	users         *user.Service
	practitioners *practitioner.Service
	log           zerolog.Logger
}

func NewService(provider *auth.Provider, users *user.Service, practitioners *practitioner.Service, log zerolog.Logger) *Service {
	return &Service{
		provider:      provider,
		users:         users,
		practitioners: practitioners,
		log:           log,
	}
}

func landingFor(role string) string {
	switch role {
	case user.RolePractitioner:
		return LandingPractitioner
	case user.RoleClient:
		return LandingClient
	default:
		return LandingFallback
	}
}

// SignUp registers a new account. The credential is created first; the
// profile documents and the verification email follow, each downgraded to a
// warning on failure so a half-finished registration still signs in.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	role := req.Role
	if role == "" {
		role = user.RoleClient
	}
	if !user.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	sess, err := s.provider.SignUp(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, err
	}

	var warnings []string
	warn := func(msg string, err error) {
		s.log.Error().Err(err).Str("uid", sess.UID.String()).Msg(msg)
		warnings = append(warnings, msg)
	}

	profile := &user.User{
		UID:   sess.UID,
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Role:  role,
	}
	if dn := strings.TrimSpace(req.DisplayName); dn != "" {
		profile.DisplayName = &dn
	}
	if err := s.users.CreateProfile(ctx, profile); err != nil {
		warn("failed to create user profile", err)
	}

	if role == user.RolePractitioner {
		if err := s.practitioners.CreateProfile(ctx, practitioner.NewDefault(sess.UID)); err != nil {
			warn("failed to create practitioner profile", err)
		}
	}

	if err := s.provider.SendVerificationEmail(ctx, sess.UID); err != nil {
		warn("failed to send verification email", err)
	}

	return &AuthResponse{
		UID:          sess.UID,
		Role:         role,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		Redirect:     landingFor(role),
		Warnings:     warnings,
	}, nil
}

// SignIn authenticates a credential and picks the landing destination from
// the durable profile.
func (s *Service) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	sess, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		UID:          sess.UID,
		Role:         sess.Role,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		Redirect:     s.landingByProfile(ctx, sess.UID),
	}, nil
}

// FederatedSignIn exchanges a federated ID token for a session, provisioning
// the User profile on first sign-in. Provisioning failures are logged and
// swallowed: the session is already established.
func (s *Service) FederatedSignIn(ctx context.Context, idToken string) (*AuthResponse, error) {
	sess, firstSignIn, err := s.provider.FederatedSignIn(ctx, idToken)
	if err != nil {
		return nil, err
	}

	if firstSignIn {
		s.provisionFederatedProfile(ctx, sess.UID)
	}

	return &AuthResponse{
		UID:          sess.UID,
		Role:         sess.Role,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		Redirect:     s.landingByProfile(ctx, sess.UID),
	}, nil
}

func (s *Service) provisionFederatedProfile(ctx context.Context, uid uuid.UUID) {
	su, err := s.provider.CurrentUser(ctx, uid)
	if err != nil {
		s.log.Error().Err(err).Str("uid", uid.String()).Msg("federated profile provisioning failed")
		return
	}

	profile := &user.User{
		UID:           uid,
		Email:         su.Email,
		Role:          user.RoleClient,
		EmailVerified: su.EmailVerified,
	}
	if su.DisplayName != "" {
		dn := su.DisplayName
		profile.DisplayName = &dn
	}
	if err := s.users.CreateProfile(ctx, profile); err != nil {
		s.log.Error().Err(err).Str("uid", uid.String()).Msg("federated profile provisioning failed")
	}
}

// landingByProfile resolves the landing destination from the users
// repository. When the store is unreachable or the profile is missing, the
// generic dashboard keeps sign-in usable.
func (s *Service) landingByProfile(ctx context.Context, uid uuid.UUID) string {
	role, err := s.users.RoleOf(ctx, uid)
	if err != nil {
		if db.IsUnavailable(err) {
			s.log.Warn().Str("uid", uid.String()).Msg("user store unavailable, landing on dashboard")
		} else {
			s.log.Error().Err(err).Str("uid", uid.String()).Msg("role lookup failed, landing on dashboard")
		}
		return LandingFallback
	}
	if role == "" {
		return LandingFallback
	}
	return landingFor(role)
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*auth.Session, error) {
	return s.provider.Refresh(ctx, rawRefresh)
}

// SignOut revokes every session for the user.
func (s *Service) SignOut(ctx context.Context, uid uuid.UUID) error {
	return s.provider.SignOut(ctx, uid)
}

// RequestPasswordReset mints a reset token and mails it.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	return s.provider.RequestPasswordReset(ctx, email)
}

// ConfirmPasswordReset consumes a reset token and replaces the password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return s.provider.ConfirmPasswordReset(ctx, token, newPassword)
}

// ResendVerification re-sends the verification email for a signed-in user.
func (s *Service) ResendVerification(ctx context.Context, uid uuid.UUID) error {
	return s.provider.SendVerificationEmail(ctx, uid)
}

// ConfirmVerifyEmail consumes a verification token.
func (s *Service) ConfirmVerifyEmail(ctx context.Context, token string) error {
	return s.provider.ConfirmVerifyEmail(ctx, token)
}

// Dashboard reports where the signed-in user belongs, for clients that
// landed on the generic fallback.
func (s *Service) Dashboard(ctx context.Context, uid uuid.UUID) DashboardInfo {
	info := DashboardInfo{UID: uid}
	role, err := s.users.RoleOf(ctx, uid)
	if err != nil || role == "" {
		return info
	}
	info.Role = role
	info.Redirect = landingFor(role)
	return info
}
