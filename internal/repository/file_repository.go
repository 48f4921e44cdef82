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

// FileRepository persists per-file upload and extraction state.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository constructs the repository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, session_id, filename, size_bytes, mime_type, storage_path, status, extracted_text, word_count, page_count, category, created_at`

// Create inserts a new file row with generated defaults.
func (r *FileRepository) Create(ctx context.Context, file *models.UploadedFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.Status == "" {
		file.Status = models.FileStatusPending
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO session_files (id, session_id, filename, size_bytes, mime_type, storage_path, status, extracted_text, word_count, page_count, category, created_at)
VALUES (:id, :session_id, :filename, :size_bytes, :mime_type, :storage_path, :status, :extracted_text, :word_count, :page_count, :category, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	return nil
}

// GetBySession returns the session's files in registration order. Stable
// ordering keeps corpus assembly deterministic across runs.
func (r *FileRepository) GetBySession(ctx context.Context, sessionID string) ([]models.UploadedFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_files WHERE session_id = $1 ORDER BY created_at ASC, id ASC`, fileColumns)
	var files []models.UploadedFile
	if err := r.db.SelectContext(ctx, &files, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session files: %w", err)
	}
	return files, nil
}

// UpdateFileParams defines the mutable extraction fields.
type UpdateFileParams struct {
	Status        *models.FileStatus
	ExtractedText *string
	WordCount     *int
	PageCount     *int
	Category      *models.DocumentCategory
}

// Update persists the provided changes for a file row.
func (r *FileRepository) Update(ctx context.Context, id string, params UpdateFileParams) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.ExtractedText != nil {
		set = append(set, fmt.Sprintf("extracted_text = $%d", argPos))
		args = append(args, *params.ExtractedText)
		argPos++
	}
	if params.WordCount != nil {
		set = append(set, fmt.Sprintf("word_count = $%d", argPos))
		args = append(args, *params.WordCount)
		argPos++
	}
	if params.PageCount != nil {
		set = append(set, fmt.Sprintf("page_count = $%d", argPos))
		args = append(args, *params.PageCount)
		argPos++
	}
	if params.Category != nil {
		set = append(set, fmt.Sprintf("category = $%d", argPos))
		args = append(args, *params.Category)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE session_files SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update session file: %w", err)
	}
	return nil
}
