package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/caseready/petition-score-api/internal/models"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

// ExportService renders a persisted scoring result into a PDF report.
type ExportService struct {
	sessions scoringSessionStore
	results  scoringResultReader
	logger   *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(sessions scoringSessionStore, results scoringResultReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{sessions: sessions, results: results, logger: logger}
}

// RenderReport produces the PDF bytes for a completed session.
func (s *ExportService) RenderReport(ctx context.Context, sessionID string) ([]byte, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scoring session not found")
	}
	result, err := s.results.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no scoring result for this session")
	}

	data, err := renderResultPDF(session, result)
	if err != nil {
		s.logger.Error("failed to render report", zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return data, nil
}

func renderResultPDF(session *models.ScoringSession, result *models.ScoringResult) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "PETITION SCORING REPORT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	subtitle := fmt.Sprintf("%s / %s", session.VisaType, session.DocumentType)
	if session.BeneficiaryName != nil && *session.BeneficiaryName != "" {
		subtitle = fmt.Sprintf("%s - %s", *session.BeneficiaryName, subtitle)
	}
	pdf.CellFormat(0, 8, subtitle, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	summaryRows := [][2]string{
		{"Overall score", fmt.Sprintf("%d / 100 (%s)", result.OverallScore, result.OverallRating)},
		{"Approval probability", fmt.Sprintf("%d%%", result.ApprovalProbability)},
		{"RFE probability", fmt.Sprintf("%d%%", result.RFEProbability)},
		{"Denial risk", fmt.Sprintf("%d%%", result.DenialRisk)},
	}
	for _, row := range summaryRows {
		pdf.CellFormat(60, 7, row[0], "1", 0, "", false, 0, "")
		pdf.CellFormat(130, 7, row[1], "1", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	if len(result.CriteriaScores) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Criteria", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(15, 7, "#", "1", 0, "C", false, 0, "")
		pdf.CellFormat(115, 7, "Criterion", "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, "Rating", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 7, "Score", "1", 1, "C", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, c := range result.CriteriaScores {
			pdf.CellFormat(15, 7, fmt.Sprintf("%d", c.Number), "1", 0, "C", false, 0, "")
			pdf.CellFormat(115, 7, truncateCell(c.Name, 70), "1", 0, "", false, 0, "")
			pdf.CellFormat(30, 7, c.Rating, "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 7, fmt.Sprintf("%d", c.Score), "1", 1, "C", false, 0, "")
		}
		pdf.Ln(4)
	}

	writeBulletSection(pdf, "Strengths", result.Strengths)
	writeBulletSection(pdf, "Weaknesses", result.Weaknesses)

	if len(result.RFEPredictions) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Predicted RFE Topics", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, p := range result.RFEPredictions {
			pdf.MultiCell(0, 6, fmt.Sprintf("- %s (%d%%)", p.Topic, p.Probability), "", "", false)
		}
		pdf.Ln(4)
	}

	writeBulletSection(pdf, "Critical Actions", result.Recommendations.Critical)
	writeBulletSection(pdf, "High Priority", result.Recommendations.High)
	writeBulletSection(pdf, "Recommended", result.Recommendations.Recommended)

	if result.FullReport != nil && strings.TrimSpace(*result.FullReport) != "" {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Officer Narrative", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, *result.FullReport, "", "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBulletSection(pdf *gofpdf.Fpdf, title string, items []string) {
	if len(items) == 0 {
		return
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, item := range items {
		pdf.MultiCell(0, 6, "- "+item, "", "", false)
	}
	pdf.Ln(4)
}

func truncateCell(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
