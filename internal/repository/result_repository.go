package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/caseready/petition-score-api/internal/models"
)

// ResultRepository persists the single scoring result per session.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository constructs the repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

const resultColumns = `session_id, overall_score, overall_rating, approval_probability, rfe_probability, denial_risk, criteria_scores, evidence_quality, rfe_predictions, strengths, weaknesses, recommendations, full_report, created_at`

// Save upserts the session's result; a superseding run replaces the prior row.
func (r *ResultRepository) Save(ctx context.Context, result *models.ScoringResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scoring_results (session_id, overall_score, overall_rating, approval_probability, rfe_probability, denial_risk, criteria_scores, evidence_quality, rfe_predictions, strengths, weaknesses, recommendations, full_report, created_at)
VALUES (:session_id, :overall_score, :overall_rating, :approval_probability, :rfe_probability, :denial_risk, :criteria_scores, :evidence_quality, :rfe_predictions, :strengths, :weaknesses, :recommendations, :full_report, :created_at)
ON CONFLICT (session_id) DO UPDATE SET
	overall_score = EXCLUDED.overall_score,
	overall_rating = EXCLUDED.overall_rating,
	approval_probability = EXCLUDED.approval_probability,
	rfe_probability = EXCLUDED.rfe_probability,
	denial_risk = EXCLUDED.denial_risk,
	criteria_scores = EXCLUDED.criteria_scores,
	evidence_quality = EXCLUDED.evidence_quality,
	rfe_predictions = EXCLUDED.rfe_predictions,
	strengths = EXCLUDED.strengths,
	weaknesses = EXCLUDED.weaknesses,
	recommendations = EXCLUDED.recommendations,
	full_report = EXCLUDED.full_report,
	created_at = EXCLUDED.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("save scoring result: %w", err)
	}
	return nil
}

// GetBySession returns the persisted result or sql.ErrNoRows.
func (r *ResultRepository) GetBySession(ctx context.Context, sessionID string) (*models.ScoringResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM scoring_results WHERE session_id = $1`, resultColumns)
	var result models.ScoringResult
	if err := r.db.GetContext(ctx, &result, query, sessionID); err != nil {
		return nil, fmt.Errorf("get scoring result: %w", err)
	}
	return &result, nil
}

// Delete removes a session's result (used when a rerun invalidates it).
func (r *ResultRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scoring_results WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete scoring result: %w", err)
	}
	return nil
}
