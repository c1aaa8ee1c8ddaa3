package token

import (
	"context"
	"crypto/rsa"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	domaintoken "github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
	"github.com/davidleathers/healthcare-security-pipeline/internal/metrics"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultLeeway     = 30 * time.Second
)

// Config configures the token manager. Exactly one signing mode must
// be usable: an HMAC secret of at least 32 bytes, or an RSA key pair.
type Config struct {
	SigningSecret []byte
	RSAPrivateKey *rsa.PrivateKey
	RSAPublicKey  *rsa.PublicKey

	Issuer   string
	Audience []string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// manager implements the Service interface
type manager struct {
	config   Config
	method   jwt.SigningMethod
	denylist *Denylist
	logger   *zap.Logger

	nowFunc func() time.Time
}

// NewManager creates a token manager. Key misconfiguration is fatal
// here, at startup, never per-request.
func NewManager(config Config, logger *zap.Logger) (Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Issuer == "" {
		return nil, errors.NewValidationError("MISSING_ISSUER", "token issuer is required")
	}
	if len(config.Audience) == 0 {
		return nil, errors.NewValidationError("MISSING_AUDIENCE", "token audience is required")
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = DefaultAccessTTL
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = DefaultRefreshTTL
	}
	if config.Leeway <= 0 {
		config.Leeway = DefaultLeeway
	}

	var method jwt.SigningMethod
	switch {
	case config.RSAPrivateKey != nil:
		if config.RSAPublicKey == nil {
			config.RSAPublicKey = &config.RSAPrivateKey.PublicKey
		}
		method = jwt.SigningMethodRS256
	case len(config.SigningSecret) >= 32:
		method = jwt.SigningMethodHS256
	case len(config.SigningSecret) > 0:
		return nil, errors.NewValidationError("WEAK_SIGNING_SECRET",
			"HMAC signing secret must be at least 32 bytes")
	default:
		return nil, errors.NewValidationError("MISSING_SIGNING_KEY",
			"either an HMAC secret or an RSA key pair is required")
	}

	return &manager{
		config:   config,
		method:   method,
		denylist: NewDenylist(),
		logger:   logger,
		nowFunc:  time.Now,
	}, nil
}

func (m *manager) IssueAccessToken(ctx context.Context, subject string, opts IssueOptions) (token string, err error) {
	defer func() { metrics.RecordTokenOperation("issue_access", err) }()

	if subject == "" {
		return "", errors.NewValidationError("MISSING_SUBJECT", "token subject is required")
	}

	ttl := m.config.AccessTTL
	if opts.TTL != "" {
		parsed, err := time.ParseDuration(opts.TTL)
		if err != nil || parsed <= 0 {
			return "", errors.NewValidationError(errors.CodeInvalidExpiry,
				"ttl must parse to a positive duration")
		}
		ttl = parsed
	}

	claims := m.baseClaims(subject, domaintoken.KindAccess, ttl)
	claims.Role = opts.Role
	claims.Permissions = opts.Permissions
	claims.ProviderID = opts.ProviderID
	claims.SubjectRecordID = opts.SubjectRecordID
	claims.ConsentLevel = opts.ConsentLevel
	claims.SessionKind = opts.SessionKind
	claims.MFAVerified = opts.MFAVerified

	return m.sign(claims)
}

func (m *manager) IssueRefreshToken(ctx context.Context, subject string) (token string, err error) {
	defer func() { metrics.RecordTokenOperation("issue_refresh", err) }()

	if subject == "" {
		return "", errors.NewValidationError("MISSING_SUBJECT", "token subject is required")
	}
	claims := m.baseClaims(subject, domaintoken.KindRefresh, m.config.RefreshTTL)
	return m.sign(claims)
}

func (m *manager) Verify(ctx context.Context, tokenString string) (result *VerifiedToken, err error) {
	defer func() { metrics.RecordTokenOperation("verify", err) }()

	// Denylist check runs first, on the unverified jti, so a revoked
	// token reports REVOKED_TOKEN regardless of other defects.
	if unverified, err := m.decodeUnverified(tokenString); err == nil {
		if id := unverified.TokenID(); id != uuid.Nil && m.denylist.Contains(id) {
			return nil, errors.NewTokenError(errors.CodeRevokedToken, "token has been revoked")
		}
	}

	claims := &domaintoken.Claims{}
	parser := jwt.NewParser(
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithValidMethods([]string{m.method.Alg()}),
	)
	parsed, err := parser.ParseWithClaims(tokenString, claims, m.keyFunc)
	if err != nil {
		return nil, m.mapParseError(err)
	}
	if !parsed.Valid {
		return nil, errors.NewTokenError(errors.CodeInvalidToken, "token is not valid")
	}

	// Issuer/audience mismatches are hard failures; absence is only a
	// warning, to tolerate legacy tokens still circulating.
	if claims.Issuer != "" && claims.Issuer != m.config.Issuer {
		return nil, errors.NewTokenError(errors.CodeInvalidToken, "token issuer mismatch")
	}
	if len(claims.Audience) > 0 && !m.audienceAccepted(claims.Audience) {
		return nil, errors.NewTokenError(errors.CodeInvalidToken, "token audience mismatch")
	}

	warnings := claims.MissingRequired()
	warnings = append(warnings, claims.DomainFindings()...)

	return &VerifiedToken{Claims: claims, Warnings: warnings}, nil
}

func (m *manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	verified, err := m.Verify(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if verified.Claims.TokenKind != domaintoken.KindRefresh {
		return nil, errors.NewTokenError(errors.CodeInvalidToken,
			"only refresh tokens can be refreshed")
	}

	subject := verified.Claims.Subject
	access, err := m.IssueAccessToken(ctx, subject, IssueOptions{
		Role:         verified.Claims.Role,
		Permissions:  verified.Claims.Permissions,
		ProviderID:   verified.Claims.ProviderID,
		ConsentLevel: verified.Claims.ConsentLevel,
		SessionKind:  verified.Claims.SessionKind,
		MFAVerified:  verified.Claims.MFAVerified,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := m.IssueRefreshToken(ctx, subject)
	if err != nil {
		return nil, err
	}

	// Rotate: the old refresh token must never validate again once the
	// new pair exists.
	if err := m.Revoke(ctx, refreshToken); err != nil {
		m.logger.Warn("failed to revoke rotated refresh token",
			zap.String("subject", subject),
			zap.Error(err))
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *manager) Revoke(ctx context.Context, tokenString string) (err error) {
	defer func() { metrics.RecordTokenOperation("revoke", err) }()

	claims, err := m.decodeUnverified(tokenString)
	if err != nil {
		return errors.NewTokenError(errors.CodeInvalidToken, "cannot decode token for revocation").WithCause(err)
	}
	tokenID := claims.TokenID()
	if tokenID == uuid.Nil {
		return errors.NewTokenError(errors.CodeMissingClaims, "token has no jti to revoke")
	}

	expiresAt := m.nowFunc().Add(m.config.RefreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	m.denylist.Add(tokenID, expiresAt)

	m.logger.Info("token revoked",
		zap.String("token_id", tokenID.String()),
		zap.String("subject", claims.Subject),
		zap.Time("denylisted_until", expiresAt))
	return nil
}

func (m *manager) IsRevoked(tokenID uuid.UUID) bool {
	return m.denylist.Contains(tokenID)
}

// SweepDenylist removes expired denylist entries. Wired to a periodic
// schedule so the denylist never grows unbounded.
func (m *manager) SweepDenylist() int {
	removed := m.denylist.Sweep()
	if removed > 0 {
		m.logger.Debug("denylist sweep completed",
			zap.Int("removed", removed),
			zap.Int("resident", m.denylist.Len()))
	}
	return removed
}

// DenylistSize reports resident entries, for metrics
func (m *manager) DenylistSize() int {
	return m.denylist.Len()
}

func (m *manager) baseClaims(subject string, kind domaintoken.Kind, ttl time.Duration) *domaintoken.Claims {
	now := m.nowFunc()
	return &domaintoken.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings(m.config.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		TokenKind: kind,
	}
}

func (m *manager) sign(claims *domaintoken.Claims) (string, error) {
	token := jwt.NewWithClaims(m.method, claims)
	var key interface{}
	if m.method == jwt.SigningMethodRS256 {
		key = m.config.RSAPrivateKey
	} else {
		key = m.config.SigningSecret
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", errors.NewInternalError("token signing failed").WithCause(err)
	}
	return signed, nil
}

func (m *manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if m.method == jwt.SigningMethodRS256 {
		return m.config.RSAPublicKey, nil
	}
	return m.config.SigningSecret, nil
}

func (m *manager) decodeUnverified(tokenString string) (*domaintoken.Claims, error) {
	claims := &domaintoken.Claims{}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *manager) audienceAccepted(audience jwt.ClaimStrings) bool {
	for _, configured := range m.config.Audience {
		for _, claimed := range audience {
			if configured == claimed {
				return true
			}
		}
	}
	return false
}

func (m *manager) mapParseError(err error) error {
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return errors.NewTokenError(errors.CodeExpiredToken, "token has expired")
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.NewTokenError(errors.CodeInvalidSignature, "token signature is invalid")
	case stderrors.Is(err, jwt.ErrTokenNotValidYet):
		return errors.NewTokenError(errors.CodeInvalidToken, "token is not valid yet")
	default:
		return errors.NewTokenError(errors.CodeInvalidToken, "token could not be parsed").WithCause(err)
	}
}
