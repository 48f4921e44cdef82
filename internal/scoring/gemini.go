package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/caseready/petition-score-api/internal/models"
)

const scoringPromptHeader = `You are a senior USCIS adjudicating officer reviewing a %s petition.
The submission under review is a %s for beneficiary %q.

Evaluate the petition the way an officer would at the adjudication desk:
- Assess each regulatory criterion claimed, rate the evidence, and note concerns.
- Estimate approval probability, RFE probability, and denial risk as independent percentages.
- Predict the specific topics a Request for Evidence would raise.
- List concrete strengths and weaknesses, and remediation steps grouped by urgency.

Respond with a single JSON object and nothing else, using exactly these keys:
overallScore, overallRating, approvalProbability, rfeProbability, denialRisk,
criteriaScores (array of {number, name, rating, score, concerns}),
evidenceQuality ({strongCount, moderateCount, weakCount, missingCount, assessment}),
rfePredictions (array of {topic, probability, officerView}),
strengths, weaknesses,
recommendations ({critical, high, recommended}),
fullReport (markdown narrative).
All scores and probabilities are integers from 0 to 100. Ratings are one of
"strong", "good", "borderline", "weak".`

// geminiPayload mirrors the JSON contract the model is instructed to emit.
type geminiPayload struct {
	OverallScore        int    `json:"overallScore"`
	OverallRating       string `json:"overallRating"`
	ApprovalProbability int    `json:"approvalProbability"`
	RFEProbability      int    `json:"rfeProbability"`
	DenialRisk          int    `json:"denialRisk"`
	CriteriaScores      []struct {
		Number   int      `json:"number"`
		Name     string   `json:"name"`
		Rating   string   `json:"rating"`
		Score    int      `json:"score"`
		Concerns []string `json:"concerns"`
	} `json:"criteriaScores"`
	EvidenceQuality struct {
		StrongCount   int    `json:"strongCount"`
		ModerateCount int    `json:"moderateCount"`
		WeakCount     int    `json:"weakCount"`
		MissingCount  int    `json:"missingCount"`
		Assessment    string `json:"assessment"`
	} `json:"evidenceQuality"`
	RFEPredictions []struct {
		Topic       string `json:"topic"`
		Probability int    `json:"probability"`
		OfficerView string `json:"officerView"`
	} `json:"rfePredictions"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations struct {
		Critical    []string `json:"critical"`
		High        []string `json:"high"`
		Recommended []string `json:"recommended"`
	} `json:"recommendations"`
	FullReport string `json:"fullReport"`
}

// GeminiScorer implements Scorer against a Gemini model. Output is validated
// against resultSchema before it is trusted.
type GeminiScorer struct {
	client *genai.Client
	model  string
	schema *jsonschema.Schema
	logger *zap.Logger
}

// NewGeminiScorer compiles the output schema and wraps the shared client.
func NewGeminiScorer(client *genai.Client, model string, logger *zap.Logger) (*GeminiScorer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.schema.json", strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("add result schema: %w", err)
	}
	schema, err := compiler.Compile("result.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	return &GeminiScorer{client: client, model: model, schema: schema, logger: logger}, nil
}

// Score runs one officer evaluation over the assembled corpus.
func (g *GeminiScorer) Score(ctx context.Context, input ScoreInput, onProgress ProgressFunc) (*models.ScoringResult, error) {
	if onProgress == nil {
		onProgress = func(int, string) {}
	}

	prompt := buildPrompt(input)
	onProgress(40, "Evaluating evidence against the regulatory criteria...")

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		g.logger.Error("scoring call failed",
			zap.String("session_id", input.SessionID), zap.Error(err))
		return nil, fmt.Errorf("generate scoring content: %w", err)
	}

	raw := stripCodeFence(strings.TrimSpace(resp.Text()))
	if raw == "" {
		return nil, fmt.Errorf("scoring model returned empty content")
	}

	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("decode scoring output: %w", err)
	}
	if err := g.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("scoring output does not match schema: %w", err)
	}

	onProgress(85, "Compiling officer assessment...")

	var payload geminiPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode scoring payload: %w", err)
	}
	return toResult(input.SessionID, &payload), nil
}

func buildPrompt(input ScoreInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, scoringPromptHeader,
		string(input.VisaType), documentTypeLabel(input.DocumentType), input.BeneficiaryName)

	if input.DocumentType == models.DocumentTypeRFEResponse && input.RFEOriginalContent != "" {
		b.WriteString("\n\n=== ORIGINAL REQUEST FOR EVIDENCE ===\n")
		b.WriteString(input.RFEOriginalContent)
		b.WriteString("\n\nJudge whether the response below resolves each deficiency raised above.")
	}

	b.WriteString("\n\n=== PETITION DOCUMENTS ===\n")
	b.WriteString(input.DocumentContent)
	return b.String()
}

func documentTypeLabel(t models.DocumentType) string {
	switch t {
	case models.DocumentTypeRFEResponse:
		return "response to a Request for Evidence"
	case models.DocumentTypeSupportOnly:
		return "set of support letters"
	default:
		return "full petition package"
	}
}

// stripCodeFence removes a surrounding markdown fence the model sometimes
// adds despite the JSON response directive.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func toResult(sessionID string, p *geminiPayload) *models.ScoringResult {
	result := &models.ScoringResult{
		SessionID:           sessionID,
		OverallScore:        p.OverallScore,
		OverallRating:       p.OverallRating,
		ApprovalProbability: p.ApprovalProbability,
		RFEProbability:      p.RFEProbability,
		DenialRisk:          p.DenialRisk,
		Strengths:           models.StringList(p.Strengths),
		Weaknesses:          models.StringList(p.Weaknesses),
	}
	result.EvidenceQuality.EvidenceQuality = models.EvidenceQuality{
		StrongCount:   p.EvidenceQuality.StrongCount,
		ModerateCount: p.EvidenceQuality.ModerateCount,
		WeakCount:     p.EvidenceQuality.WeakCount,
		MissingCount:  p.EvidenceQuality.MissingCount,
		Assessment:    p.EvidenceQuality.Assessment,
	}
	result.Recommendations.Recommendations = models.Recommendations{
		Critical:    p.Recommendations.Critical,
		High:        p.Recommendations.High,
		Recommended: p.Recommendations.Recommended,
	}
	for _, c := range p.CriteriaScores {
		result.CriteriaScores = append(result.CriteriaScores, models.CriterionScore{
			Number:   c.Number,
			Name:     c.Name,
			Rating:   c.Rating,
			Score:    c.Score,
			Concerns: c.Concerns,
		})
	}
	for _, r := range p.RFEPredictions {
		result.RFEPredictions = append(result.RFEPredictions, models.RFEPrediction{
			Topic:       r.Topic,
			Probability: r.Probability,
			OfficerView: r.OfficerView,
		})
	}
	if p.FullReport != "" {
		report := p.FullReport
		result.FullReport = &report
	}
	return result
}
