package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "awardvote/pkg/domain"
	"awardvote/pkg/platform/sentinel"
	"awardvote/pkg/requestcontext"
)

const schema = `
CREATE TABLE IF NOT EXISTS submission_ledger (
	payment_ref   TEXT PRIMARY KEY,
	submission_id UUID NOT NULL,
	session_id    TEXT NOT NULL,
	status        TEXT NOT NULL,
	votes         INTEGER NOT NULL,
	fingerprint   TEXT NOT NULL,
	created       INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

const columns = `submission_id, payment_ref, session_id, status, votes, fingerprint, created, attempts, created_at, updated_at`

// PostgresStore persists the ledger. It is pure I/O; the workflow decides
// what a pending or completed entry means.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the ledger table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// Begin claims the reference atomically. A pending row gets its attempt count
// bumped; a completed row is returned untouched.
func (s *PostgresStore) Begin(ctx context.Context, claim Claim) (Entry, error) {
	now := requestcontext.Now(ctx)
	query := `
		INSERT INTO submission_ledger (` + columns + `)
		VALUES ($1, $2, $3, 'pending', $4, $5, 0, 1, $6, $6)
		ON CONFLICT (payment_ref) DO UPDATE SET
			attempts = CASE WHEN submission_ledger.status = 'pending'
				AND submission_ledger.fingerprint = EXCLUDED.fingerprint
				THEN submission_ledger.attempts + 1 ELSE submission_ledger.attempts END,
			updated_at = CASE WHEN submission_ledger.status = 'pending'
				AND submission_ledger.fingerprint = EXCLUDED.fingerprint
				THEN EXCLUDED.updated_at ELSE submission_ledger.updated_at END
		RETURNING ` + columns
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query,
		uuid.UUID(id.NewSubmissionID()),
		claim.PaymentRef,
		claim.SessionID,
		claim.Votes,
		claim.Fingerprint,
		now,
	))
	if err != nil {
		return Entry{}, fmt.Errorf("begin ledger entry: %w", err)
	}
	if entry.Fingerprint != claim.Fingerprint {
		return entry, ErrFingerprintMismatch
	}
	return entry, nil
}

func (s *PostgresStore) Complete(ctx context.Context, paymentRef string, created int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE submission_ledger
		SET status = 'completed', created = $2, updated_at = $3
		WHERE payment_ref = $1
	`, paymentRef, created, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("complete ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete ledger entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("complete %s: %w", paymentRef, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, paymentRef string) (Entry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM submission_ledger WHERE payment_ref = $1`, paymentRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, sentinel.ErrNotFound
		}
		return Entry{}, fmt.Errorf("get ledger entry: %w", err)
	}
	return entry, nil
}

func scanEntry(row *sql.Row) (Entry, error) {
	var (
		e            Entry
		submissionID uuid.UUID
		status       string
	)
	if err := row.Scan(
		&submissionID,
		&e.PaymentRef,
		&e.SessionID,
		&status,
		&e.Votes,
		&e.Fingerprint,
		&e.Created,
		&e.Attempts,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return Entry{}, err
	}
	e.SubmissionID = id.SubmissionID(submissionID)
	e.Status = Status(status)
	return e, nil
}
