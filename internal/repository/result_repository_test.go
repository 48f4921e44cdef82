package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseready/petition-score-api/internal/models"
)

func TestResultSaveUpserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("INSERT INTO scoring_results").WillReturnResult(sqlmock.NewResult(0, 1))

	result := &models.ScoringResult{
		SessionID:           "s1",
		OverallScore:        82,
		OverallRating:       "good",
		ApprovalProbability: 75,
		RFEProbability:      30,
		DenialRisk:          10,
		CriteriaScores: models.CriterionScores{
			{Number: 1, Name: "Awards", Rating: "strong", Score: 90},
		},
		Strengths:  models.StringList{"strong publication record"},
		Weaknesses: models.StringList{"thin exhibit coverage"},
	}
	err := repo.Save(context.Background(), result)
	require.NoError(t, err)
	assert.False(t, result.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultGetBySessionScansJSONB(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"session_id", "overall_score", "overall_rating", "approval_probability", "rfe_probability", "denial_risk", "criteria_scores", "evidence_quality", "rfe_predictions", "strengths", "weaknesses", "recommendations", "full_report", "created_at"}).
		AddRow(
			"s1", 82, "good", 75, 30, 10,
			[]byte(`[{"number":1,"name":"Awards","rating":"strong","score":90}]`),
			[]byte(`{"strong_count":3,"moderate_count":2,"weak_count":1,"missing_count":0,"assessment":"solid"}`),
			[]byte(`[{"topic":"original contribution","probability":40}]`),
			[]byte(`["strong publication record"]`),
			[]byte(`["thin exhibit coverage"]`),
			[]byte(`{"critical":["add award evidence"]}`),
			nil, now,
		)
	mock.ExpectQuery("SELECT .+ FROM scoring_results WHERE session_id").
		WithArgs("s1").
		WillReturnRows(rows)

	result, err := repo.GetBySession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 82, result.OverallScore)
	require.Len(t, result.CriteriaScores, 1)
	assert.Equal(t, "Awards", result.CriteriaScores[0].Name)
	assert.Equal(t, 3, result.EvidenceQuality.StrongCount)
	require.Len(t, result.RFEPredictions, 1)
	assert.Equal(t, 40, result.RFEPredictions[0].Probability)
	assert.Equal(t, []string{"add award evidence"}, result.Recommendations.Critical)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("DELETE FROM scoring_results").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "s1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
