package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/caseready/petition-score-api/internal/models"
)

// SessionRepository persists scoring session rows.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, document_type, visa_type, beneficiary_name, status, progress, progress_message, error_message, run_token, created_at, completed_at`

// Create inserts a new session row with generated defaults.
func (r *SessionRepository) Create(ctx context.Context, session *models.ScoringSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusCreated
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scoring_sessions (id, document_type, visa_type, beneficiary_name, status, progress, progress_message, error_message, run_token, created_at, completed_at)
VALUES (:id, :document_type, :visa_type, :beneficiary_name, :status, :progress, :progress_message, :error_message, :run_token, :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create scoring session: %w", err)
	}
	return nil
}

// GetByID returns a session row by its identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ScoringSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM scoring_sessions WHERE id = $1`, sessionColumns)
	var session models.ScoringSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, fmt.Errorf("get scoring session: %w", err)
	}
	return &session, nil
}

// UpdateSessionParams defines the mutable fields.
type UpdateSessionParams struct {
	Status          *models.SessionStatus
	Progress        *int
	ProgressMessage *string
	ErrorMessage    *string
	RunToken        *string
	CompletedAt     *time.Time
}

// Update persists the provided changes for a session row.
func (r *SessionRepository) Update(ctx context.Context, id string, params UpdateSessionParams) error {
	set, args := buildSessionSet(params)
	if len(set) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE scoring_sessions SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)+1)
	args = append(args, id)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update scoring session: %w", err)
	}
	return nil
}

// UpdateIfToken applies the changes only while the session's run token still
// matches, returning false when a newer run has taken over.
func (r *SessionRepository) UpdateIfToken(ctx context.Context, id, runToken string, params UpdateSessionParams) (bool, error) {
	set, args := buildSessionSet(params)
	if len(set) == 0 {
		return true, nil
	}
	query := fmt.Sprintf("UPDATE scoring_sessions SET %s WHERE id = $%d AND run_token = $%d",
		strings.Join(set, ", "), len(args)+1, len(args)+2)
	args = append(args, id, runToken)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update scoring session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update scoring session: %w", err)
	}
	return affected > 0, nil
}

// ResetForRun stamps a fresh run token and returns the session to the start
// of the pipeline, clearing any residue from a previous run.
func (r *SessionRepository) ResetForRun(ctx context.Context, id, runToken string) error {
	const query = `UPDATE scoring_sessions
SET status = 'processing', progress = 0, progress_message = 'Queued for scoring', error_message = NULL, run_token = $2, completed_at = NULL
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, runToken); err != nil {
		return fmt.Errorf("reset scoring session: %w", err)
	}
	return nil
}

// ListUnfinished fetches sessions stuck mid-run (used for cold start recovery).
func (r *SessionRepository) ListUnfinished(ctx context.Context, limit int) ([]models.ScoringSession, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM scoring_sessions WHERE status IN ('processing', 'scoring') ORDER BY created_at ASC LIMIT $1`, sessionColumns)
	var sessions []models.ScoringSession
	if err := r.db.SelectContext(ctx, &sessions, query, limit); err != nil {
		return nil, fmt.Errorf("list unfinished sessions: %w", err)
	}
	return sessions, nil
}

func buildSessionSet(params UpdateSessionParams) ([]string, []interface{}) {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.ProgressMessage != nil {
		set = append(set, fmt.Sprintf("progress_message = $%d", argPos))
		args = append(args, *params.ProgressMessage)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.RunToken != nil {
		set = append(set, fmt.Sprintf("run_token = $%d", argPos))
		args = append(args, *params.RunToken)
		argPos++
	}
	if params.CompletedAt != nil {
		set = append(set, fmt.Sprintf("completed_at = $%d", argPos))
		args = append(args, *params.CompletedAt)
		argPos++
	}
	return set, args
}
