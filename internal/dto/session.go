package dto

import (
	"time"

	"github.com/caseready/petition-score-api/internal/models"
)

// CreateSessionRequest captures POST /sessions payload.
type CreateSessionRequest struct {
	DocumentType    models.DocumentType `json:"document_type" binding:"required"`
	VisaType        models.VisaType     `json:"visa_type" binding:"required"`
	BeneficiaryName *string             `json:"beneficiary_name,omitempty"`
}

// SessionResponse is returned after session creation and on lookups.
type SessionResponse struct {
	ID              string               `json:"id"`
	DocumentType    models.DocumentType  `json:"document_type"`
	VisaType        models.VisaType      `json:"visa_type"`
	BeneficiaryName *string              `json:"beneficiary_name,omitempty"`
	Status          models.SessionStatus `json:"status"`
	Progress        int                  `json:"progress"`
	ProgressMessage *string              `json:"progress_message,omitempty"`
	ErrorMessage    *string              `json:"error_message,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	Files           []FileResponse       `json:"files,omitempty"`
}

// FileResponse exposes per-file extraction state to pollers.
type FileResponse struct {
	ID        string                   `json:"id"`
	Filename  string                   `json:"filename"`
	SizeBytes int64                    `json:"size_bytes"`
	MimeType  string                   `json:"mime_type"`
	Status    models.FileStatus        `json:"status"`
	WordCount *int                     `json:"word_count,omitempty"`
	PageCount *int                     `json:"page_count,omitempty"`
	Category  *models.DocumentCategory `json:"category,omitempty"`
}

// ScoreRequest triggers a scoring run for a session. A second submission for
// the same session supersedes the run already in flight.
type ScoreRequest struct {
	DocumentContent    string `json:"document_content,omitempty"`
	RFEOriginalContent string `json:"rfe_original_content,omitempty"`
}

// ScoreAcceptedResponse acknowledges an enqueued run.
type ScoreAcceptedResponse struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Progress  int                  `json:"progress"`
}

// StatusResponse is the lightweight polling payload.
type StatusResponse struct {
	SessionID       string                `json:"session_id"`
	Status          models.SessionStatus  `json:"status"`
	Progress        int                   `json:"progress"`
	ProgressMessage *string               `json:"progress_message,omitempty"`
	ErrorMessage    *string               `json:"error_message,omitempty"`
	Results         *models.ScoringResult `json:"results,omitempty"`
}

// NewSessionResponse maps a session row (and optional files) to the API shape.
func NewSessionResponse(s *models.ScoringSession, files []models.UploadedFile) SessionResponse {
	resp := SessionResponse{
		ID:              s.ID,
		DocumentType:    s.DocumentType,
		VisaType:        s.VisaType,
		BeneficiaryName: s.BeneficiaryName,
		Status:          s.Status,
		Progress:        s.Progress,
		ProgressMessage: s.ProgressMessage,
		ErrorMessage:    s.ErrorMessage,
		CreatedAt:       s.CreatedAt,
		CompletedAt:     s.CompletedAt,
	}
	for _, f := range files {
		resp.Files = append(resp.Files, FileResponse{
			ID:        f.ID,
			Filename:  f.Filename,
			SizeBytes: f.SizeBytes,
			MimeType:  f.MimeType,
			Status:    f.Status,
			WordCount: f.WordCount,
			PageCount: f.PageCount,
			Category:  f.Category,
		})
	}
	return resp
}
