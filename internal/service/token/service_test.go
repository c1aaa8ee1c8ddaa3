package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	domaintoken "github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) Service {
	t.Helper()
	svc, err := NewManager(Config{
		SigningSecret: testSecret,
		Issuer:        "secpipeline",
		Audience:      []string{"secpipeline-api"},
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantCode string
	}{
		{
			name:     "missing issuer",
			config:   Config{SigningSecret: testSecret, Audience: []string{"api"}},
			wantCode: "MISSING_ISSUER",
		},
		{
			name:     "missing audience",
			config:   Config{SigningSecret: testSecret, Issuer: "secpipeline"},
			wantCode: "MISSING_AUDIENCE",
		},
		{
			name:     "short HMAC secret",
			config:   Config{SigningSecret: []byte("short"), Issuer: "secpipeline", Audience: []string{"api"}},
			wantCode: "WEAK_SIGNING_SECRET",
		},
		{
			name:     "no key at all",
			config:   Config{Issuer: "secpipeline", Audience: []string{"api"}},
			wantCode: "MISSING_SIGNING_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.config, nil)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode))
		})
	}

	t.Run("RSA keys accepted", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		svc, err := NewManager(Config{
			RSAPrivateKey: key,
			Issuer:        "secpipeline",
			Audience:      []string{"api"},
		}, nil)
		require.NoError(t, err)

		signed, err := svc.IssueAccessToken(context.Background(), "clinician-1", IssueOptions{})
		require.NoError(t, err)

		verified, err := svc.Verify(context.Background(), signed)
		require.NoError(t, err)
		assert.Equal(t, "clinician-1", verified.Claims.Subject)
	})
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestManager(t)
	ctx := context.Background()

	t.Run("full claim set round-trips", func(t *testing.T) {
		signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{
			Role:            "physician",
			Permissions:     []string{"records:read", "records:write"},
			ProviderID:      "provider-3",
			SubjectRecordID: "record-12",
			ConsentLevel:    "full",
			SessionKind:     domaintoken.SessionTelemedicine,
			MFAVerified:     true,
		})
		require.NoError(t, err)

		verified, err := svc.Verify(ctx, signed)
		require.NoError(t, err)

		claims := verified.Claims
		assert.Equal(t, "clinician-7", claims.Subject)
		assert.Equal(t, domaintoken.KindAccess, claims.TokenKind)
		assert.Equal(t, "physician", claims.Role)
		assert.True(t, claims.HasPermission("records:read"))
		assert.Equal(t, "provider-3", claims.ProviderID)
		assert.True(t, claims.MFAVerified)
		assert.NotEqual(t, uuid.Nil, claims.TokenID())
		assert.Empty(t, verified.Warnings)
	})

	t.Run("every issuance gets a fresh jti", func(t *testing.T) {
		a, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{})
		require.NoError(t, err)
		b, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{})
		require.NoError(t, err)

		va, err := svc.Verify(ctx, a)
		require.NoError(t, err)
		vb, err := svc.Verify(ctx, b)
		require.NoError(t, err)
		assert.NotEqual(t, va.Claims.TokenID(), vb.Claims.TokenID())
	})

	t.Run("empty subject rejected", func(t *testing.T) {
		_, err := svc.IssueAccessToken(ctx, "", IssueOptions{})
		assert.True(t, errors.IsCode(err, "MISSING_SUBJECT"))
	})

	t.Run("TTL override", func(t *testing.T) {
		signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{TTL: "1h"})
		require.NoError(t, err)

		verified, err := svc.Verify(ctx, signed)
		require.NoError(t, err)
		remaining := time.Until(verified.Claims.ExpiresAt.Time)
		assert.Greater(t, remaining, 55*time.Minute)
	})

	t.Run("invalid TTL rejected", func(t *testing.T) {
		_, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{TTL: "soon"})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidExpiry))

		_, err = svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{TTL: "-5m"})
		assert.True(t, errors.IsCode(err, errors.CodeInvalidExpiry))
	})
}

func TestVerifyFailures(t *testing.T) {
	svc := newTestManager(t)
	ctx := context.Background()

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Verify(ctx, "not-a-token")
		assert.True(t, errors.IsCode(err, errors.CodeInvalidToken))
	})

	t.Run("wrong signature", func(t *testing.T) {
		other, err := NewManager(Config{
			SigningSecret: []byte("ffffffffffffffffffffffffffffffff"),
			Issuer:        "secpipeline",
			Audience:      []string{"secpipeline-api"},
		}, nil)
		require.NoError(t, err)

		signed, err := other.IssueAccessToken(ctx, "clinician-7", IssueOptions{})
		require.NoError(t, err)

		_, err = svc.Verify(ctx, signed)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidSignature))
	})

	t.Run("expired token", func(t *testing.T) {
		m := svc.(*manager)
		old := m.nowFunc
		m.nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{TTL: "1m"})
		m.nowFunc = old
		require.NoError(t, err)

		_, err = svc.Verify(ctx, signed)
		assert.True(t, errors.IsCode(err, errors.CodeExpiredToken))
	})

	t.Run("issuer mismatch is a hard failure", func(t *testing.T) {
		other, err := NewManager(Config{
			SigningSecret: testSecret,
			Issuer:        "someone-else",
			Audience:      []string{"secpipeline-api"},
		}, nil)
		require.NoError(t, err)

		signed, err := other.IssueAccessToken(ctx, "clinician-7", IssueOptions{})
		require.NoError(t, err)

		_, err = svc.Verify(ctx, signed)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidToken))
	})

	t.Run("missing claims are warnings, not failures", func(t *testing.T) {
		// Hand-build a token with almost no claims.
		bare := jwt.NewWithClaims(jwt.SigningMethodHS256, &domaintoken.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			},
			TokenKind: domaintoken.KindAccess,
		})
		signed, err := bare.SignedString(testSecret)
		require.NoError(t, err)

		verified, err := svc.Verify(ctx, signed)
		require.NoError(t, err)
		assert.NotEmpty(t, verified.Warnings)

		codes := make(map[string]int)
		for _, w := range verified.Warnings {
			codes[w.Code]++
		}
		assert.NotZero(t, codes["MISSING_CLAIMS"])
	})

	t.Run("telemedicine without MFA is flagged", func(t *testing.T) {
		signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{
			SessionKind: domaintoken.SessionTelemedicine,
			MFAVerified: false,
		})
		require.NoError(t, err)

		verified, err := svc.Verify(ctx, signed)
		require.NoError(t, err)

		found := false
		for _, w := range verified.Warnings {
			if w.Code == "TELEMEDICINE_WITHOUT_MFA" {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestRevocation(t *testing.T) {
	svc := newTestManager(t)
	ctx := context.Background()

	t.Run("revoked token fails with REVOKED_TOKEN", func(t *testing.T) {
		signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{})
		require.NoError(t, err)

		require.NoError(t, svc.Revoke(ctx, signed))

		_, err = svc.Verify(ctx, signed)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeRevokedToken))
	})

	t.Run("revocation beats other defects", func(t *testing.T) {
		// An expired and revoked token must still report revocation.
		m := svc.(*manager)
		old := m.nowFunc
		m.nowFunc = func() time.Time { return time.Now().Add(-time.Hour) }
		signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{TTL: "1m"})
		m.nowFunc = old
		require.NoError(t, err)

		claims := &domaintoken.Claims{}
		_, _, err = jwt.NewParser().ParseUnverified(signed, claims)
		require.NoError(t, err)
		m.denylist.Add(claims.TokenID(), time.Now().Add(time.Hour))

		_, err = svc.Verify(ctx, signed)
		assert.True(t, errors.IsCode(err, errors.CodeRevokedToken))
	})

	t.Run("revoking garbage fails", func(t *testing.T) {
		err := svc.Revoke(ctx, "garbage")
		assert.True(t, errors.IsCode(err, errors.CodeInvalidToken))
	})

	t.Run("IsRevoked reflects the denylist", func(t *testing.T) {
		signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{})
		require.NoError(t, err)

		verified, err := svc.Verify(ctx, signed)
		require.NoError(t, err)
		id := verified.Claims.TokenID()

		assert.False(t, svc.IsRevoked(id))
		require.NoError(t, svc.Revoke(ctx, signed))
		assert.True(t, svc.IsRevoked(id))
	})
}

func TestRefresh(t *testing.T) {
	svc := newTestManager(t)
	ctx := context.Background()

	t.Run("rotation issues a new pair and revokes the old", func(t *testing.T) {
		refresh, err := svc.IssueRefreshToken(ctx, "clinician-7")
		require.NoError(t, err)

		pair, err := svc.Refresh(ctx, refresh)
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.NotEqual(t, refresh, pair.RefreshToken)

		// The rotated-out token never validates again.
		_, err = svc.Refresh(ctx, refresh)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeRevokedToken))

		// The new pair works.
		verified, err := svc.Verify(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, domaintoken.KindAccess, verified.Claims.TokenKind)
	})

	t.Run("access tokens cannot be refreshed", func(t *testing.T) {
		access, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{})
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, access)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidToken))
	})
}

func TestDenylist(t *testing.T) {
	t.Run("contains honors expiry", func(t *testing.T) {
		d := NewDenylist()
		id := uuid.New()
		d.Add(id, time.Now().Add(time.Hour))
		assert.True(t, d.Contains(id))

		d.nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
		assert.False(t, d.Contains(id))
	})

	t.Run("sweep removes only expired entries", func(t *testing.T) {
		d := NewDenylist()
		now := time.Now()
		d.nowFunc = func() time.Time { return now }

		live := uuid.New()
		expired := uuid.New()
		boundary := uuid.New()
		d.Add(live, now.Add(time.Hour))
		d.Add(expired, now.Add(-time.Minute))
		d.Add(boundary, now)

		removed := d.Sweep()
		assert.Equal(t, 2, removed)
		assert.Equal(t, 1, d.Len())
		assert.True(t, d.Contains(live))
	})

	t.Run("sweep on empty list", func(t *testing.T) {
		d := NewDenylist()
		assert.Zero(t, d.Sweep())
	})

	t.Run("nil ID is ignored", func(t *testing.T) {
		d := NewDenylist()
		d.Add(uuid.Nil, time.Now().Add(time.Hour))
		assert.Zero(t, d.Len())
	})

	t.Run("concurrent access", func(t *testing.T) {
		d := NewDenylist()
		done := make(chan struct{})
		go func() {
			for i := 0; i < 500; i++ {
				d.Add(uuid.New(), time.Now().Add(time.Minute))
			}
			close(done)
		}()
		for i := 0; i < 500; i++ {
			d.Contains(uuid.New())
			d.Sweep()
		}
		<-done
	})
}

func TestSweepDenylistService(t *testing.T) {
	svc := newTestManager(t)
	ctx := context.Background()

	signed, err := svc.IssueAccessToken(ctx, "clinician-7", IssueOptions{TTL: "1ms"})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, signed))
	require.Equal(t, 1, svc.DenylistSize())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, svc.SweepDenylist())
	assert.Zero(t, svc.DenylistSize())
}
