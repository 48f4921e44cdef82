package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caseready/petition-score-api/internal/coordinator"
	"github.com/caseready/petition-score-api/internal/dto"
	"github.com/caseready/petition-score-api/internal/models"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

type scoringSessionStore interface {
	Create(ctx context.Context, session *models.ScoringSession) error
	GetByID(ctx context.Context, id string) (*models.ScoringSession, error)
}

type sessionFileStore interface {
	Create(ctx context.Context, file *models.UploadedFile) error
	GetBySession(ctx context.Context, sessionID string) ([]models.UploadedFile, error)
}

type scoringResultReader interface {
	GetBySession(ctx context.Context, sessionID string) (*models.ScoringResult, error)
}

type uploadBlobStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

type scoringRunSubmitter interface {
	Submit(ctx context.Context, sessionID string, overrides coordinator.Overrides) (string, error)
}

// UploadLimits bounds incoming files.
type UploadLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// SessionService handles the scoring session lifecycle: creation, uploads,
// run submission, and polling reads.
type SessionService struct {
	sessions    scoringSessionStore
	files       sessionFileStore
	results     scoringResultReader
	blobs       uploadBlobStore
	submitter   scoringRunSubmitter
	statusCache *StatusCache
	limits      UploadLimits
	logger      *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(
	sessions scoringSessionStore,
	files sessionFileStore,
	results scoringResultReader,
	blobs uploadBlobStore,
	submitter scoringRunSubmitter,
	statusCache *StatusCache,
	limits UploadLimits,
	logger *zap.Logger,
) *SessionService {
	if limits.MaxFileSizeBytes <= 0 {
		limits.MaxFileSizeBytes = 200 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:    sessions,
		files:       files,
		results:     results,
		blobs:       blobs,
		submitter:   submitter,
		statusCache: statusCache,
		limits:      limits,
		logger:      logger,
	}
}

// Create registers a new scoring session.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	if !validDocumentType(req.DocumentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported document type %q", req.DocumentType))
	}
	if !validVisaType(req.VisaType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported visa type %q", req.VisaType))
	}

	session := &models.ScoringSession{
		DocumentType:    req.DocumentType,
		VisaType:        req.VisaType,
		BeneficiaryName: req.BeneficiaryName,
		Status:          models.SessionStatusCreated,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("failed to create session", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create scoring session")
	}

	s.logger.Info("scoring session created",
		zap.String("session_id", session.ID),
		zap.String("document_type", string(session.DocumentType)),
		zap.String("visa_type", string(session.VisaType)))

	resp := dto.NewSessionResponse(session, nil)
	return &resp, nil
}

// Get returns the session with its files, and the persisted result once the
// run has completed.
func (s *SessionService) Get(ctx context.Context, id string) (*dto.SessionResponse, *models.ScoringResult, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	files, err := s.files.GetBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load session files")
	}

	var result *models.ScoringResult
	if session.Status == models.SessionStatusCompleted {
		result, err = s.results.GetBySession(ctx, session.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load scoring result")
		}
	}

	resp := dto.NewSessionResponse(session, files)
	return &resp, result, nil
}

// Status returns the lightweight polling payload, served from the Redis
// snapshot while a run is in flight.
func (s *SessionService) Status(ctx context.Context, id string) (*dto.StatusResponse, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}

	if snapshot, ok := s.statusCache.Lookup(ctx, id); ok && !snapshot.Status.Terminal() {
		message := snapshot.ProgressMessage
		return &dto.StatusResponse{
			SessionID:       id,
			Status:          snapshot.Status,
			Progress:        snapshot.Progress,
			ProgressMessage: &message,
		}, nil
	}

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.StatusResponse{
		SessionID:       session.ID,
		Status:          session.Status,
		Progress:        session.Progress,
		ProgressMessage: session.ProgressMessage,
		ErrorMessage:    session.ErrorMessage,
	}
	if session.Status == models.SessionStatusCompleted {
		result, err := s.results.GetBySession(ctx, session.ID)
		if err == nil {
			resp.Results = result
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load scoring result")
		}
	}
	return resp, nil
}

// Upload validates and stores one uploaded binary for the session.
func (s *SessionService) Upload(ctx context.Context, sessionID, filename, mimeType string, size int64, r io.Reader) (*dto.FileResponse, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if size > s.limits.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file %q exceeds the %d byte upload limit", filename, s.limits.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(mimeType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file type %q", mimeType))
	}

	storedName := session.ID + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	storagePath, err := s.blobs.SaveStream(storedName, r)
	if err != nil {
		s.logger.Error("failed to store upload",
			zap.String("session_id", session.ID), zap.String("filename", filename), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to store uploaded file")
	}

	file := &models.UploadedFile{
		SessionID:   session.ID,
		Filename:    filename,
		SizeBytes:   size,
		MimeType:    mimeType,
		StoragePath: storagePath,
		Status:      models.FileStatusPending,
	}
	if err := s.files.Create(ctx, file); err != nil {
		// The blob is orphaned without its row; remove it.
		if delErr := s.blobs.Delete(storagePath); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload",
				zap.String("storage_path", storagePath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to register uploaded file")
	}

	s.logger.Info("file uploaded",
		zap.String("session_id", session.ID),
		zap.String("file_id", file.ID),
		zap.String("filename", filename),
		zap.Int64("size_bytes", size))

	return &dto.FileResponse{
		ID:        file.ID,
		Filename:  file.Filename,
		SizeBytes: file.SizeBytes,
		MimeType:  file.MimeType,
		Status:    file.Status,
	}, nil
}

// Score submits a scoring run. A session already mid-run is restarted under a
// fresh run token and the old run's writes are dropped.
func (s *SessionService) Score(ctx context.Context, sessionID string, req dto.ScoreRequest) (*dto.ScoreAcceptedResponse, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	if _, err := s.submitter.Submit(ctx, sessionID, coordinator.Overrides{
		DocumentContent:    req.DocumentContent,
		RFEOriginalContent: req.RFEOriginalContent,
	}); err != nil {
		return nil, err
	}

	return &dto.ScoreAcceptedResponse{
		SessionID: sessionID,
		Status:    models.SessionStatusProcessing,
		Progress:  0,
	}, nil
}

// Results returns the persisted scoring result.
func (s *SessionService) Results(ctx context.Context, sessionID string) (*models.ScoringResult, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	result, err := s.results.GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no scoring result for this session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load scoring result")
	}
	return result, nil
}

// load validates the identifier before touching storage.
func (s *SessionService) load(ctx context.Context, id string) (*models.ScoringSession, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scoring session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load scoring session")
	}
	return session, nil
}

func (s *SessionService) mimeAllowed(mimeType string) bool {
	if len(s.limits.AllowedMIMEs) == 0 {
		return mimeType == "application/pdf" ||
			strings.HasPrefix(mimeType, "image/") ||
			strings.HasPrefix(mimeType, "text/")
	}
	for _, allowed := range s.limits.AllowedMIMEs {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

func validateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid session id")
	}
	return nil
}

func validDocumentType(t models.DocumentType) bool {
	switch t {
	case models.DocumentTypeFullPetition, models.DocumentTypeRFEResponse, models.DocumentTypeSupportOnly:
		return true
	default:
		return false
	}
}

func validVisaType(t models.VisaType) bool {
	switch t {
	case models.VisaTypeO1A, models.VisaTypeO1B, models.VisaTypeEB1, models.VisaTypeP1:
		return true
	default:
		return false
	}
}
