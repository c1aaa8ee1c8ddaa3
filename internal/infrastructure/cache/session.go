package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
)

// DefaultSessionTTL bounds how long a resolved session stays valid
// without a refresh.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore resolves and manages server-side sessions backing the
// cookie-based authentication path.
type SessionStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, logger *zap.Logger, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{client: client, logger: logger, ttl: ttl}
}

// Put stores the claim set for a session ID, refreshing its TTL.
func (s *SessionStore) Put(ctx context.Context, sessionID string, claims *token.Claims) error {
	if sessionID == "" {
		return errors.NewValidationError("MISSING_SESSION_ID", "session ID is required")
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("marshaling session claims: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+sessionID, data, s.ttl).Err(); err != nil {
		return errors.NewStorageWriteError("failed to store session").WithCause(err)
	}
	return nil
}

// Resolve looks up the claims for a session ID. A missing session is
// an error; the risk engine treats it as unauthenticated.
func (s *SessionStore) Resolve(ctx context.Context, sessionID string) (*token.Claims, error) {
	data, err := s.client.Get(ctx, sessionPrefix+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.NewNotFoundError("session")
		}
		s.logger.Error("session lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, errors.NewStorageReadError("failed to resolve session").WithCause(err)
	}

	var claims token.Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("unmarshaling session claims: %w", err)
	}
	return &claims, nil
}

// Delete removes a session, ending the cookie-based login.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionPrefix+sessionID).Err(); err != nil {
		return errors.NewStorageWriteError("failed to delete session").WithCause(err)
	}
	return nil
}
