package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPurpose is carried in the typ claim. Access tokens carry none.
type TokenPurpose string

const (
	PurposeAccess        TokenPurpose = ""
	PurposeRefresh       TokenPurpose = "refresh"
	PurposePasswordReset TokenPurpose = "password_reset"
)

func (p TokenPurpose) kind() string {
	if p == PurposeAccess {
		return "access"
	}
	return string(p)
}

const (
	DefaultAccessTTL  = 120 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// Claims is the payload of every token: sub, exp, iat, jti and an optional typ.
type Claims struct {
	Type TokenPurpose `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig is read once at construction and never mutated afterwards.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	Leeway     time.Duration
	Now        func() time.Time
}

type TokenService interface {
	IssueAccessToken(subject string) (string, error)
	IssueAccessTokenWithTTL(subject string, ttl time.Duration) (string, error)
	IssueRefreshToken(subject string) (string, error)
	IssuePasswordResetToken(email string) (string, error)
	VerifyAccessToken(token string) (*Claims, error)
	VerifyRefreshToken(token string) (*Claims, error)
	VerifyPasswordResetToken(token string) (*Claims, error)
	AccessTTL() time.Duration
}

// JWTTokenService signs and verifies HS256 tokens. It holds no mutable state
// and is safe for concurrent use.
type JWTTokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	parser     *jwt.Parser
	logger     *slog.Logger
	metrics    *Metrics
}

var (
	errEmptySecret  = errors.New("token secret must not be empty")
	errEmptySubject = errors.New("token subject must not be empty")
)

func NewJWTTokenService(cfg TokenConfig, logger *slog.Logger, metrics *Metrics) (*JWTTokenService, error) {
	if cfg.Secret == "" {
		return nil, errEmptySecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JWTTokenService{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		resetTTL:   cfg.ResetTTL,
		now:        cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Now),
		),
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (s *JWTTokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *JWTTokenService) IssueAccessToken(subject string) (string, error) {
	return s.sign(subject, PurposeAccess, s.accessTTL)
}

// IssueAccessTokenWithTTL accepts any ttl, including negative ones, so callers
// can mint already-expired tokens.
func (s *JWTTokenService) IssueAccessTokenWithTTL(subject string, ttl time.Duration) (string, error) {
	return s.sign(subject, PurposeAccess, ttl)
}

func (s *JWTTokenService) IssueRefreshToken(subject string) (string, error) {
	return s.sign(subject, PurposeRefresh, s.refreshTTL)
}

func (s *JWTTokenService) IssuePasswordResetToken(email string) (string, error) {
	return s.sign(email, PurposePasswordReset, s.resetTTL)
}

func (s *JWTTokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.verify(token, PurposeAccess)
}

func (s *JWTTokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return s.verify(token, PurposeRefresh)
}

func (s *JWTTokenService) VerifyPasswordResetToken(token string) (*Claims, error) {
	return s.verify(token, PurposePasswordReset)
}

func (s *JWTTokenService) sign(subject string, purpose TokenPurpose, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errEmptySubject
	}
	now := s.now()
	claims := Claims{
		Type: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// verify collapses every failure into ErrUnauthorized. The precise reason is
// logged and counted but never returned.
func (s *JWTTokenService) verify(raw string, want TokenPurpose) (*Claims, error) {
	kind := want.kind()
	claims := &Claims{}

	token, err := s.parser.ParseWithClaims(raw, claims, s.keyFunc)
	if err != nil {
		return nil, s.reject(kind, classifyTokenError(token, err), err)
	}
	if !token.Valid {
		return nil, s.reject(kind, "malformed", nil)
	}
	if claims.Type != want {
		return nil, s.reject(kind, "wrong_purpose", nil)
	}
	if claims.Subject == "" {
		return nil, s.reject(kind, "missing_subject", nil)
	}

	s.metrics.tokenVerified(kind, "ok")
	return claims, nil
}

func (s *JWTTokenService) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, jwt.ErrTokenUnverifiable
	}
	return s.secret, nil
}

func (s *JWTTokenService) reject(kind, reason string, cause error) error {
	attrs := []any{"kind", kind, "reason", reason}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	s.logger.Warn("token rejected", attrs...)
	s.metrics.tokenVerified(kind, reason)
	return ErrUnauthorized
}

func classifyTokenError(token *jwt.Token, err error) string {
	if token != nil && token.Method != nil && token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return "algorithm"
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_expiry"
	default:
		return "malformed"
	}
}
