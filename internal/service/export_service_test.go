package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseready/petition-score-api/internal/models"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

func sampleResult(sessionID string) *models.ScoringResult {
	report := "The petition presents a mixed evidentiary record."
	return &models.ScoringResult{
		SessionID:           sessionID,
		OverallScore:        78,
		OverallRating:       "good",
		ApprovalProbability: 70,
		RFEProbability:      35,
		DenialRisk:          10,
		CriteriaScores: models.CriterionScores{
			{Number: 1, Name: "Nationally recognized awards", Rating: "strong", Score: 90},
			{Number: 2, Name: "Published material about the beneficiary", Rating: "borderline", Score: 55, Concerns: []string{"outlets not clearly major media"}},
		},
		EvidenceQuality: models.EvidenceJSON{EvidenceQuality: models.EvidenceQuality{
			StrongCount: 2, ModerateCount: 3, WeakCount: 1, Assessment: "generally solid",
		}},
		RFEPredictions: models.RFEPredictions{
			{Topic: "original contributions of major significance", Probability: 45, OfficerView: "comparative evidence is thin"},
		},
		Strengths:  models.StringList{"sustained acclaim in the field"},
		Weaknesses: models.StringList{"support letters lack independent authors"},
		Recommendations: models.RecommendJSON{Recommendations: models.Recommendations{
			Critical: []string{"obtain letters from independent experts"},
			High:     []string{"document award selectivity"},
		}},
		FullReport: &report,
	}
}

func TestRenderReport(t *testing.T) {
	sessions := newStubSessionStore()
	results := newStubResultReader()
	svc := NewExportService(sessions, results, nil)

	session := &models.ScoringSession{
		ID:           uuid.NewString(),
		DocumentType: models.DocumentTypeFullPetition,
		VisaType:     models.VisaTypeO1A,
		Status:       models.SessionStatusCompleted,
	}
	sessions.sessions[session.ID] = session
	results.results[session.ID] = sampleResult(session.ID)

	data, err := svc.RenderReport(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestRenderReportNoResult(t *testing.T) {
	sessions := newStubSessionStore()
	results := newStubResultReader()
	svc := NewExportService(sessions, results, nil)

	session := &models.ScoringSession{ID: uuid.NewString(), Status: models.SessionStatusCompleted}
	sessions.sessions[session.ID] = session

	_, err := svc.RenderReport(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound.Code))
}

func TestRenderReportInvalidID(t *testing.T) {
	svc := NewExportService(newStubSessionStore(), newStubResultReader(), nil)

	_, err := svc.RenderReport(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
}
