package models

import "time"

// FileStatus tracks per-file extraction state.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusExtracting FileStatus = "extracting"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// DocumentCategory is the semantic classification assigned after extraction.
type DocumentCategory string

const (
	CategoryRFEOriginal   DocumentCategory = "rfe_original"
	CategoryRFEResponse   DocumentCategory = "rfe_response"
	CategoryExhibit       DocumentCategory = "exhibit"
	CategoryContract      DocumentCategory = "contract"
	CategorySupportLetter DocumentCategory = "support_letter"
	CategoryAward         DocumentCategory = "award"
	CategoryMedia         DocumentCategory = "media"
	CategoryLegalDocument DocumentCategory = "legal_document"
	CategoryOther         DocumentCategory = "other"
)

// UploadedFile is one uploaded binary owned by a scoring session. ExtractedText
// is written once by the extractor; Category by the classifier.
type UploadedFile struct {
	ID            string            `db:"id" json:"id"`
	SessionID     string            `db:"session_id" json:"session_id"`
	Filename      string            `db:"filename" json:"filename"`
	SizeBytes     int64             `db:"size_bytes" json:"size_bytes"`
	MimeType      string            `db:"mime_type" json:"mime_type"`
	StoragePath   string            `db:"storage_path" json:"-"`
	Status        FileStatus        `db:"status" json:"status"`
	ExtractedText *string           `db:"extracted_text" json:"-"`
	WordCount     *int              `db:"word_count" json:"word_count,omitempty"`
	PageCount     *int              `db:"page_count" json:"page_count,omitempty"`
	Category      *DocumentCategory `db:"category" json:"category,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// TextLength returns the length of the stored extracted text, 0 when absent.
func (f *UploadedFile) TextLength() int {
	if f.ExtractedText == nil {
		return 0
	}
	return len(*f.ExtractedText)
}
