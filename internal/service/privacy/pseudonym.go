package privacy

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
)

const (
	pseudonymSaltBytes = 16
	pbkdf2KeyBytes     = 32
)

func (e *engine) CreatePseudonym(ctx context.Context, identifier, purpose string, reversible bool) (*privacy.Pseudonym, error) {
	if identifier == "" {
		return nil, errors.NewValidationError("MISSING_IDENTIFIER", "identifier is required")
	}
	if purpose == "" {
		return nil, errors.NewValidationError("MISSING_PURPOSE", "purpose is required")
	}

	salt := make([]byte, pseudonymSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.NewInternalError("failed to generate pseudonym salt").WithCause(err)
	}

	if reversible {
		return e.createReversible(ctx, identifier, purpose, salt)
	}
	return e.createIrreversible(identifier, purpose, salt), nil
}

// createReversible derives a purpose-bound HMAC pseudonym and persists
// the mapping so an authorized caller can reverse it later.
func (e *engine) createReversible(ctx context.Context, identifier, purpose string, salt []byte) (*privacy.Pseudonym, error) {
	if len(e.config.PseudonymSecret) == 0 {
		return nil, errors.NewValidationError("MISSING_PSEUDONYM_SECRET",
			"reversible pseudonyms require a configured secret")
	}
	if e.mappings == nil {
		return nil, errors.NewInternalError("reversible pseudonyms require a mapping repository")
	}

	mac := hmac.New(sha256.New, e.purposeKey(purpose))
	mac.Write(salt)
	mac.Write([]byte(identifier))
	pseudonym := hex.EncodeToString(mac.Sum(nil))

	mapping := &privacy.PseudonymMapping{
		ID:         uuid.New(),
		Pseudonym:  pseudonym,
		Identifier: identifier,
		Salt:       hex.EncodeToString(salt),
		Purpose:    purpose,
		Algorithm:  privacy.AlgorithmHMACSHA256,
		Reversible: true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.mappings.Insert(ctx, mapping); err != nil {
		return nil, errors.NewStorageWriteError("failed to persist pseudonym mapping").WithCause(err)
	}

	e.auditPseudonym(ctx, audit.EventPseudonymCreated, "system", purpose, map[string]interface{}{
		"algorithm":  string(privacy.AlgorithmHMACSHA256),
		"reversible": true,
	})

	return &privacy.Pseudonym{
		Pseudonym:  pseudonym,
		Salt:       mapping.Salt,
		Algorithm:  privacy.AlgorithmHMACSHA256,
		Reversible: true,
	}, nil
}

// createIrreversible stretches the identifier through PBKDF2. No
// mapping is stored; the output cannot be resolved back.
func (e *engine) createIrreversible(identifier, purpose string, salt []byte) *privacy.Pseudonym {
	derived := pbkdf2.Key(
		[]byte(identifier),
		append([]byte(purpose+"\x1f"), salt...),
		e.config.PBKDF2Iterations,
		pbkdf2KeyBytes,
		sha256.New,
	)
	return &privacy.Pseudonym{
		Pseudonym:  hex.EncodeToString(derived),
		Salt:       hex.EncodeToString(salt),
		Algorithm:  privacy.AlgorithmPBKDF2SHA256,
		Reversible: false,
	}
}

func (e *engine) ReversePseudonym(ctx context.Context, pseudonym, purpose string, auth Authorization) (string, error) {
	if pseudonym == "" || purpose == "" {
		return "", errors.NewValidationError("MISSING_PSEUDONYM", "pseudonym and purpose are required")
	}
	// The grant must name the purpose being reversed; an authorization
	// issued for one purpose cannot unlock another.
	if auth.Purpose != purpose {
		e.logger.Warn("pseudonym reversal denied: purpose mismatch",
			zap.String("actor_id", auth.ActorID),
			zap.String("granted_purpose", auth.Purpose),
			zap.String("requested_purpose", purpose))
		return "", errors.NewUnauthorizedReversalError(purpose)
	}
	if e.authorizer == nil || !e.authorizer.AuthorizeReversal(ctx, auth) {
		e.logger.Warn("pseudonym reversal denied",
			zap.String("actor_id", auth.ActorID),
			zap.String("purpose", purpose))
		return "", errors.NewUnauthorizedReversalError(purpose)
	}
	if e.mappings == nil {
		return "", errors.NewStorageReadError("no pseudonym mapping repository configured")
	}

	mapping, err := e.mappings.GetByPseudonym(ctx, pseudonym, purpose)
	if err != nil {
		return "", errors.NewStorageReadError("failed to load pseudonym mapping").WithCause(err)
	}
	if mapping == nil || !mapping.Reversible {
		return "", errors.NewNotFoundError("pseudonym mapping")
	}

	e.auditPseudonym(ctx, audit.EventPseudonymReversed, auth.ActorID, purpose, map[string]interface{}{
		"grant":      auth.Grant,
		"mapping_id": mapping.ID.String(),
	})

	return mapping.Identifier, nil
}

// purposeKey binds the HMAC key to one purpose so pseudonyms for
// different purposes are unlinkable even for the same identifier.
func (e *engine) purposeKey(purpose string) []byte {
	mac := hmac.New(sha256.New, e.config.PseudonymSecret)
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}

func (e *engine) auditPseudonym(ctx context.Context, eventType audit.EventType, actorID, purpose string, details map[string]interface{}) {
	if e.trail == nil {
		return
	}
	event, err := audit.NewEvent(eventType, audit.CategoryPrivacy, audit.SeverityMedium, audit.OutcomeSuccess, "default")
	if err != nil {
		return
	}
	event.WithActor(actorID, "").WithDetail("purpose", purpose)
	for k, v := range details {
		event.WithDetail(k, v)
	}
	event.DataSensitivity = audit.SensitivityRestricted
	if _, err := e.trail.LogEvent(ctx, event); err != nil {
		e.logger.Error("failed to audit pseudonym operation",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
