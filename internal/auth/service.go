package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/core/common/validation"
	datamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
	"github.com/frahmantamala/authcore/internal/core/events"
)

const TokenTypeBearer = "bearer"

type ServiceAPI interface {
	Authenticate(ctx context.Context, username, password string) (*Identity, error)
	IssueTokens(identity *Identity) (AuthTokens, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (AuthTokens, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	Authorize(ctx context.Context, token, permission string) (*Identity, error)
	CurrentIdentity(ctx context.Context, token string) (*Identity, error)
	OptionalIdentity(ctx context.Context, token string) *Identity
	Logout(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, identity *Identity, oldPassword, newPassword string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Service drives the login, refresh and password-reset flows and resolves
// bearer tokens into identities. It keeps no per-session state.
type Service struct {
	store          CredentialStore
	hasher         PasswordHasher
	tokens         TokenService
	resolver       *PermissionResolver
	denylist       Denylist
	publisher      EventPublisher
	logger         *slog.Logger
	metrics        *Metrics
	singleUseReset bool

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithDenylist(d Denylist) Option {
	return func(s *Service) {
		if d != nil {
			s.denylist = d
		}
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSingleUseResetTokens makes a confirmed reset token unusable afterwards.
// It only has an effect with a denylist that actually stores revocations.
func WithSingleUseResetTokens(enabled bool) Option {
	return func(s *Service) { s.singleUseReset = enabled }
}

func NewService(store CredentialStore, hasher PasswordHasher, tokens TokenService, resolver *PermissionResolver, opts ...Option) *Service {
	s := &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		resolver: resolver,
		denylist: NopDenylist{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate checks username and password. Unknown user, wrong password and
// inactive account all return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, internal.NewInternalError("failed to load user", err)
		}
		// Burn a comparison so unknown users take as long as known ones.
		s.hasher.Verify(password, s.timingHash())
		return nil, s.loginFailed(ctx, username, "unknown_user")
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, s.loginFailed(ctx, username, "bad_password")
	}
	if !u.IsActive {
		return nil, s.loginFailed(ctx, username, "inactive")
	}

	identity := s.resolver.BuildIdentity(u)
	s.metrics.login("success")
	s.logger.Info("user logged in", "user_id", u.ID, "username", u.Username)
	s.publish(ctx, events.NewUserLoggedInEvent(u.ID, u.Username))
	return identity, nil
}

func (s *Service) loginFailed(ctx context.Context, username, reason string) error {
	s.metrics.login(reason)
	s.logger.Warn("login failed", "username", username, "reason", reason)
	s.publish(ctx, events.NewLoginFailedEvent(username))
	return ErrInvalidCredentials
}

func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		if h, err := s.hasher.Hash("authcore-timing-equalizer"); err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *Service) IssueTokens(identity *Identity) (AuthTokens, error) {
	if identity == nil {
		return AuthTokens{}, ErrUnauthorized
	}
	access, err := s.tokens.IssueAccessToken(identity.Username)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue access token", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(identity.Username)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue refresh token", err)
	}
	return AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// RefreshAccessToken mints a new access token only. The refresh token is not
// rotated.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Warn("refresh token for unknown user", "username", claims.Subject)
			return AuthTokens{}, ErrUnauthorized
		}
		return AuthTokens{}, internal.NewInternalError("failed to load user", err)
	}
	if !u.IsActive {
		s.logger.Warn("refresh token for inactive user", "user_id", u.ID)
		return AuthTokens{}, ErrUnauthorized
	}

	access, err := s.tokens.IssueAccessToken(u.Username)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue access token", err)
	}
	return AuthTokens{
		AccessToken: access,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// RequestPasswordReset returns nil whether or not the email belongs to an
// active account. Only store failures surface.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return nil
	}
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return internal.NewInternalError("failed to load user", err)
	}
	if !u.IsActive {
		s.logger.Info("password reset requested for inactive user", "user_id", u.ID)
		return nil
	}

	token, err := s.tokens.IssuePasswordResetToken(email)
	if err != nil {
		return internal.NewInternalError("failed to issue reset token", err)
	}
	s.logger.Info("password reset token issued", "user_id", u.ID)
	s.publish(ctx, events.NewPasswordResetRequestedEvent(u.ID, email, token))
	return nil
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.VerifyPasswordResetToken(token)
	if err != nil {
		return err
	}
	if appErr := validation.ValidateNewPassword("new_password", newPassword); appErr != nil {
		return appErr
	}

	u, err := s.store.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Warn("reset token for unknown email")
			return ErrUnauthorized
		}
		return internal.NewInternalError("failed to load user", err)
	}
	if !u.IsActive {
		s.logger.Warn("reset token for inactive user", "user_id", u.ID)
		return ErrUnauthorized
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	// The jti is consumed before the write so two concurrent confirms cannot
	// both succeed. A failed write hands the token back.
	if s.singleUseReset {
		fresh, err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
		if err != nil {
			return internal.NewInternalError("failed to consume reset token", err)
		}
		if !fresh {
			s.logger.Warn("reset token replayed", "user_id", u.ID)
			s.metrics.tokenVerified(PurposePasswordReset.kind(), "replayed")
			return ErrUnauthorized
		}
	}

	if err := s.store.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		if s.singleUseReset {
			if rerr := s.denylist.Release(context.WithoutCancel(ctx), claims.ID); rerr != nil {
				s.logger.Error("reset token consumed but password not updated",
					"user_id", u.ID, "error", rerr)
			}
		}
		return internal.NewInternalError("failed to update password", err)
	}
	s.logger.Info("password reset completed", "user_id", u.ID)
	s.publish(ctx, events.NewPasswordChangedEvent(u.ID, events.PasswordChangeReasonReset))
	return nil
}

// Authorize resolves token to an identity and, when permission is non-empty,
// requires it. An empty permission means authentication only.
func (s *Service) Authorize(ctx context.Context, token, permission string) (*Identity, error) {
	u, err := s.loadUser(ctx, token)
	if err != nil {
		s.metrics.authorization(outcomeFor(err))
		return nil, err
	}
	identity := s.resolver.BuildIdentity(u)

	if permission != "" && !s.resolver.HasPermission(u, permission) {
		s.logger.Warn("access denied: insufficient permissions",
			"user_id", u.ID,
			"required_permission", permission,
			"user_permissions", identity.Permissions.Slice())
		s.metrics.authorization("forbidden")
		return nil, internal.NewPermissionDeniedError(permission)
	}

	s.metrics.authorization("allowed")
	return identity, nil
}

func (s *Service) CurrentIdentity(ctx context.Context, token string) (*Identity, error) {
	return s.Authorize(ctx, token, "")
}

// OptionalIdentity never fails; any problem yields an anonymous caller.
func (s *Service) OptionalIdentity(ctx context.Context, token string) *Identity {
	if token == "" {
		return nil
	}
	identity, err := s.CurrentIdentity(ctx, token)
	if err != nil {
		s.logger.Debug("optional identity unresolved", "error", err)
		return nil
	}
	return identity
}

// Logout revokes the access token's id until it expires. Without a storing
// denylist this is a no-op beyond validating the token.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return err
	}
	if _, err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return internal.NewInternalError("failed to revoke token", err)
	}
	s.logger.Info("user logged out", "username", claims.Subject)
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, identity *Identity, oldPassword, newPassword string) error {
	if identity == nil {
		return ErrUnauthorized
	}
	if appErr := validation.ValidateNewPassword("new_password", newPassword); appErr != nil {
		return appErr
	}

	u, err := s.store.FindByUsername(ctx, identity.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUnauthorized
		}
		return internal.NewInternalError("failed to load user", err)
	}
	if !s.hasher.Verify(oldPassword, u.PasswordHash) {
		return internal.NewValidationFieldError("old_password", "old password is incorrect", internal.ErrCodeInvalidPassword)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return internal.NewInternalError("failed to update password", err)
	}
	s.logger.Info("password changed", "user_id", u.ID)
	s.publish(ctx, events.NewPasswordChangedEvent(u.ID, events.PasswordChangeReasonChange))
	return nil
}

func (s *Service) loadUser(ctx context.Context, token string) (*datamodel.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}

	u, err := s.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Warn("token subject not found", "username", claims.Subject)
			return nil, ErrUnauthorized
		}
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if !u.IsActive {
		s.logger.Warn("inactive user presented valid token", "user_id", u.ID)
		return nil, ErrUserInactive
	}
	return u, nil
}

// checkRevoked fails closed when the denylist cannot be consulted.
func (s *Service) checkRevoked(ctx context.Context, claims *Claims) error {
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error("denylist lookup failed", "error", err)
		return internal.NewInternalError("failed to check token revocation", err)
	}
	if revoked {
		s.metrics.tokenVerified(claims.Type.kind(), "revoked")
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUserInactive):
		return "inactive"
	default:
		return "error"
	}
}
