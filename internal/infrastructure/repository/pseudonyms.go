package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
)

// PseudonymRepository stores reversible pseudonym mappings. The table
// holds raw identifiers, so access to it is the trust boundary of the
// whole pseudonymization scheme.
type PseudonymRepository struct {
	db *pgxpool.Pool
}

func NewPseudonymRepository(db *pgxpool.Pool) *PseudonymRepository {
	return &PseudonymRepository{db: db}
}

func (r *PseudonymRepository) Insert(ctx context.Context, mapping *privacy.PseudonymMapping) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pseudonym_mappings
			(id, pseudonym, identifier, salt, purpose, algorithm, reversible, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		mapping.ID,
		mapping.Pseudonym,
		mapping.Identifier,
		mapping.Salt,
		mapping.Purpose,
		string(mapping.Algorithm),
		mapping.Reversible,
		mapping.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.NewConflictError("pseudonym mapping already exists")
		}
		return errors.NewStorageWriteError("failed to insert pseudonym mapping").WithCause(err)
	}
	return nil
}

// GetByPseudonym returns nil without error when no mapping exists; the
// privacy engine turns that into a uniform not-found response.
func (r *PseudonymRepository) GetByPseudonym(ctx context.Context, pseudonym, purpose string) (*privacy.PseudonymMapping, error) {
	var (
		mapping   privacy.PseudonymMapping
		algorithm string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, pseudonym, identifier, salt, purpose, algorithm, reversible, created_at
		FROM pseudonym_mappings
		WHERE pseudonym = $1 AND purpose = $2`,
		pseudonym, purpose,
	).Scan(
		&mapping.ID,
		&mapping.Pseudonym,
		&mapping.Identifier,
		&mapping.Salt,
		&mapping.Purpose,
		&algorithm,
		&mapping.Reversible,
		&mapping.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.NewStorageReadError("failed to load pseudonym mapping").WithCause(err)
	}
	mapping.Algorithm = privacy.PseudonymAlgorithm(algorithm)
	return &mapping, nil
}
