package scoring

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/caseready/petition-score-api/internal/models"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

// ScoreInput is the typed contract handed to the opaque scoring function.
type ScoreInput struct {
	SessionID          string
	DocumentType       models.DocumentType
	VisaType           models.VisaType
	BeneficiaryName    string
	DocumentContent    string
	RFEOriginalContent string
}

// ProgressFunc reports scoring progress. Implementations may be no-ops; they
// may be invoked zero or more times before Score returns.
type ProgressFunc func(progress int, message string)

// Scorer is the opaque petition-scoring function. Prompt content is a
// business concern that evolves independently of this pipeline.
type Scorer interface {
	Score(ctx context.Context, input ScoreInput, onProgress ProgressFunc) (*models.ScoringResult, error)
}

// Orchestrator invokes the scoring function and normalizes its output. A
// failing progress sink is logged and never aborts the scoring itself.
type Orchestrator struct {
	scorer Scorer
	logger *zap.Logger
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(scorer Scorer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{scorer: scorer, logger: logger}
}

// Run scores the assembled corpus and returns a normalized result.
func (o *Orchestrator) Run(ctx context.Context, input ScoreInput, onProgress ProgressFunc) (*models.ScoringResult, error) {
	if strings.TrimSpace(input.DocumentContent) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no document content available for scoring")
	}

	report := o.guarded(input.SessionID, onProgress)
	report(20, "Officer is reviewing the petition...")

	result, err := o.scorer.Score(ctx, input, report)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrScoring.Code, appErrors.ErrScoring.Status, err.Error())
	}
	if result == nil {
		return nil, appErrors.Clone(appErrors.ErrScoring, "scoring function returned no result")
	}

	normalize(result, input.SessionID)
	report(100, "Scoring complete")
	return result, nil
}

// guarded wraps the progress callback so sink panics or absence never
// propagate into the scoring path.
func (o *Orchestrator) guarded(sessionID string, onProgress ProgressFunc) ProgressFunc {
	return func(progress int, message string) {
		if onProgress == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				o.logger.Warn("progress sink panicked",
					zap.String("session_id", sessionID), zap.Any("panic", r))
			}
		}()
		onProgress(progress, message)
	}
}

func normalize(r *models.ScoringResult, sessionID string) {
	if r.SessionID == "" {
		r.SessionID = sessionID
	}
	r.OverallScore = clamp(r.OverallScore)
	r.ApprovalProbability = clamp(r.ApprovalProbability)
	r.RFEProbability = clamp(r.RFEProbability)
	r.DenialRisk = clamp(r.DenialRisk)
	if r.OverallRating == "" {
		r.OverallRating = ratingForScore(r.OverallScore)
	}
	for i := range r.CriteriaScores {
		r.CriteriaScores[i].Score = clamp(r.CriteriaScores[i].Score)
		if r.CriteriaScores[i].Rating == "" {
			r.CriteriaScores[i].Rating = ratingForScore(r.CriteriaScores[i].Score)
		}
	}
	for i := range r.RFEPredictions {
		r.RFEPredictions[i].Probability = clamp(r.RFEPredictions[i].Probability)
	}
	if r.CriteriaScores == nil {
		r.CriteriaScores = models.CriterionScores{}
	}
	if r.RFEPredictions == nil {
		r.RFEPredictions = models.RFEPredictions{}
	}
	if r.Strengths == nil {
		r.Strengths = models.StringList{}
	}
	if r.Weaknesses == nil {
		r.Weaknesses = models.StringList{}
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func ratingForScore(score int) string {
	switch {
	case score >= 85:
		return "strong"
	case score >= 70:
		return "good"
	case score >= 50:
		return "borderline"
	default:
		return "weak"
	}
}
