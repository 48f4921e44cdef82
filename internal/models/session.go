package models

import "time"

// DocumentType enumerates the petition document sets a session evaluates.
type DocumentType string

const (
	DocumentTypeFullPetition DocumentType = "full_petition"
	DocumentTypeRFEResponse  DocumentType = "rfe_response"
	DocumentTypeSupportOnly  DocumentType = "support_letters"
)

// VisaType enumerates supported visa categories.
type VisaType string

const (
	VisaTypeO1A VisaType = "O-1A"
	VisaTypeO1B VisaType = "O-1B"
	VisaTypeEB1 VisaType = "EB-1A"
	VisaTypeP1  VisaType = "P-1"
)

// SessionStatus captures the scoring run lifecycle.
type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "created"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusScoring    SessionStatus = "scoring"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusError      SessionStatus = "error"
)

// Terminal reports whether no further transitions are possible for the status.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusError
}

// ScoringSession groups a set of uploaded files through to one scoring result.
// RunToken identifies the authoritative in-flight run; a superseded run's writes
// are dropped when its token no longer matches.
type ScoringSession struct {
	ID              string        `db:"id" json:"id"`
	DocumentType    DocumentType  `db:"document_type" json:"document_type"`
	VisaType        VisaType      `db:"visa_type" json:"visa_type"`
	BeneficiaryName *string       `db:"beneficiary_name" json:"beneficiary_name,omitempty"`
	Status          SessionStatus `db:"status" json:"status"`
	Progress        int           `db:"progress" json:"progress"`
	ProgressMessage *string       `db:"progress_message" json:"progress_message,omitempty"`
	ErrorMessage    *string       `db:"error_message" json:"error_message,omitempty"`
	RunToken        *string       `db:"run_token" json:"-"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}
