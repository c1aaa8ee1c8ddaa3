package token

import (
	"context"

	"github.com/google/uuid"

	domaintoken "github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
)

// Service manages the bearer-token lifecycle: issuance, verification,
// refresh rotation and pre-expiry revocation.
type Service interface {
	// IssueAccessToken builds, signs and returns an access token for
	// the subject. Options may carry domain claims and a TTL override;
	// a TTL that does not parse to a positive duration fails with
	// INVALID_EXPIRY.
	IssueAccessToken(ctx context.Context, subject string, opts IssueOptions) (string, error)

	// IssueRefreshToken issues a refresh token for the subject
	IssueRefreshToken(ctx context.Context, subject string) (string, error)

	// Verify validates a signed token. Hard failures: revocation,
	// signature, expiry. Missing required claims and domain-rule
	// findings come back as warnings on the result.
	Verify(ctx context.Context, tokenString string) (*VerifiedToken, error)

	// Refresh rotates a refresh token into a new access/refresh pair.
	// The old refresh token is revoked; it never validates again.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Revoke denylists a token until its natural expiry. The signature
	// is not verified; revoking garbage is a no-op error.
	Revoke(ctx context.Context, tokenString string) error

	// IsRevoked is an O(1) denylist membership check
	IsRevoked(tokenID uuid.UUID) bool

	// SweepDenylist evicts expired denylist entries; scheduled
	// periodically so the denylist stays bounded
	SweepDenylist() int

	// DenylistSize reports resident denylist entries, for metrics
	DenylistSize() int
}

// IssueOptions carries optional claims for access-token issuance
type IssueOptions struct {
	Role            string
	Permissions     []string
	ProviderID      string
	SubjectRecordID string
	ConsentLevel    string
	SessionKind     domaintoken.SessionKind
	MFAVerified     bool

	// TTL overrides the configured access-token lifetime when set.
	// Must parse as a positive time.Duration ("30m", "2h").
	TTL string
}

// VerifiedToken is a successful verification result. Warnings carry
// non-fatal findings; enforcement is the caller's job.
type VerifiedToken struct {
	Claims   *domaintoken.Claims    `json:"claims"`
	Warnings []domaintoken.Warning  `json:"warnings,omitempty"`
}

// TokenPair is the result of a refresh rotation
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
