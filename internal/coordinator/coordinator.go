// Package coordinator drives the background scoring run for a session:
// extraction fan-out, corpus assembly, officer scoring, and result
// persistence, with optimistic run-token checks on every state write so a
// superseded run can never clobber a newer one.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caseready/petition-score-api/internal/corpus"
	"github.com/caseready/petition-score-api/internal/extract"
	"github.com/caseready/petition-score-api/internal/models"
	"github.com/caseready/petition-score-api/internal/repository"
	"github.com/caseready/petition-score-api/internal/scoring"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
	"github.com/caseready/petition-score-api/pkg/jobs"
)

// errSuperseded aborts a run whose token was replaced by a newer submission.
var errSuperseded = errors.New("run superseded by a newer submission")

type sessionStore interface {
	GetByID(ctx context.Context, id string) (*models.ScoringSession, error)
	ResetForRun(ctx context.Context, id, runToken string) error
	UpdateIfToken(ctx context.Context, id, runToken string, params repository.UpdateSessionParams) (bool, error)
	ListUnfinished(ctx context.Context, limit int) ([]models.ScoringSession, error)
}

type fileStore interface {
	GetBySession(ctx context.Context, sessionID string) ([]models.UploadedFile, error)
	Update(ctx context.Context, id string, params repository.UpdateFileParams) error
}

type resultStore interface {
	Save(ctx context.Context, result *models.ScoringResult) error
	Delete(ctx context.Context, sessionID string) error
}

type blobStore interface {
	Download(storagePath string) ([]byte, error)
}

type textExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) (extract.Result, error)
}

type scoreRunner interface {
	Run(ctx context.Context, input scoring.ScoreInput, onProgress scoring.ProgressFunc) (*models.ScoringResult, error)
}

// pipelineMetrics matches the instrumentation surface of the metrics service.
type pipelineMetrics interface {
	RunStarted()
	RunFinished()
	ObserveExtraction(method string, duration time.Duration)
	RecordExtractionFailure()
	RecordOCRFallback()
	ObserveScoring(duration time.Duration, failed bool)
}

type nopMetrics struct{}

func (nopMetrics) RunStarted()                             {}
func (nopMetrics) RunFinished()                            {}
func (nopMetrics) ObserveExtraction(string, time.Duration) {}
func (nopMetrics) RecordExtractionFailure()                {}
func (nopMetrics) RecordOCRFallback()                      {}
func (nopMetrics) ObserveScoring(time.Duration, bool)      {}

// Config tunes the pipeline run behaviour.
type Config struct {
	Workers        int
	StepRetries    int
	RetryDelay     time.Duration
	ScoringTimeout time.Duration
	SkipMinChars   int
	RecoveryLimit  int
}

// Overrides carries caller-supplied corpus content that bypasses assembly.
type Overrides struct {
	DocumentContent    string
	RFEOriginalContent string
}

type jobPayload struct {
	SessionID string
	RunToken  string
	Overrides Overrides
}

type runHandle struct {
	token  string
	ctx    context.Context
	cancel context.CancelFunc
}

// Coordinator owns the scoring job queue and the per-session run registry.
type Coordinator struct {
	sessions  sessionStore
	files     fileStore
	results   resultStore
	blobs     blobStore
	extractor textExtractor
	assembler *corpus.Assembler
	scorer    scoreRunner
	publisher StatusPublisher
	metrics   pipelineMetrics
	logger    *zap.Logger
	cfg       Config

	queue *jobs.Queue

	// submitMu serializes run starts so the stored token and the registry
	// entry always belong to the same submission.
	submitMu sync.Mutex

	mu      sync.Mutex
	runs    map[string]*runHandle
	baseCtx context.Context
}

// New wires the coordinator and its queue. Start must be called before Submit.
func New(
	sessions sessionStore,
	files fileStore,
	results resultStore,
	blobs blobStore,
	extractor textExtractor,
	assembler *corpus.Assembler,
	scorer scoreRunner,
	publisher StatusPublisher,
	metrics pipelineMetrics,
	logger *zap.Logger,
	cfg Config,
) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.StepRetries < 0 {
		cfg.StepRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.ScoringTimeout <= 0 {
		cfg.ScoringTimeout = 15 * time.Minute
	}
	if cfg.SkipMinChars <= 0 {
		cfg.SkipMinChars = 100
	}
	if cfg.RecoveryLimit <= 0 {
		cfg.RecoveryLimit = 20
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		sessions:  sessions,
		files:     files,
		results:   results,
		blobs:     blobs,
		extractor: extractor,
		assembler: assembler,
		scorer:    scorer,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		runs:      make(map[string]*runHandle),
	}
	// Step retries live inside the pipeline; the queue never re-runs a job.
	c.queue = jobs.NewQueue("scoring", c.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: 1,
		Logger:     logger,
	})
	return c
}

// Start launches the queue workers.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()
	c.queue.Start(ctx)
}

// Stop cancels in-flight runs and drains the workers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	for _, h := range c.runs {
		h.cancel()
	}
	c.mu.Unlock()
	c.queue.Stop()
}

// Submit mints a fresh run token for the session, cancels any in-flight run,
// and enqueues the pipeline. The returned token identifies the new run. A
// session with no files and no inline content is rejected up front, before
// any state transition.
func (c *Coordinator) Submit(ctx context.Context, sessionID string, overrides Overrides) (string, error) {
	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "scoring session not found")
	}

	if strings.TrimSpace(overrides.DocumentContent) == "" {
		files, err := c.files.GetBySession(ctx, sessionID)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load session files")
		}
		if len(files) == 0 {
			return "", appErrors.Clone(appErrors.ErrValidation, "no document content available")
		}
	}

	token, err := c.startRun(ctx, sessionID)
	if err != nil {
		return "", err
	}

	// The prior run's result is stale the moment a new token is minted.
	if err := c.results.Delete(ctx, sessionID); err != nil {
		c.logger.Warn("failed to clear stale scoring result",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	c.publisher.Publish(ctx, sessionID, models.SessionStatusProcessing, 0, "Queued for scoring")

	err = c.queue.Enqueue(jobs.Job{
		ID:      token,
		Type:    "score-session",
		Payload: jobPayload{SessionID: session.ID, RunToken: token, Overrides: overrides},
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue scoring run")
	}
	return token, nil
}

// RecoverPending restarts sessions that were mid-run when the process last
// stopped. Extraction results persisted by the interrupted run are reused.
func (c *Coordinator) RecoverPending(ctx context.Context) error {
	sessions, err := c.sessions.ListUnfinished(ctx, c.cfg.RecoveryLimit)
	if err != nil {
		return fmt.Errorf("list unfinished sessions: %w", err)
	}
	for _, s := range sessions {
		if _, err := c.Submit(ctx, s.ID, Overrides{}); err != nil {
			c.logger.Error("failed to recover session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		c.logger.Info("recovered interrupted scoring session", zap.String("session_id", s.ID))
	}
	return nil
}

// startRun mints the run token and points both the session row and the run
// registry at it as one step. Without the lock two interleaved submissions
// could leave the row holding one token and the registry another, and neither
// run would ever pass its guarded writes.
func (c *Coordinator) startRun(ctx context.Context, sessionID string) (string, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	token := uuid.NewString()
	if err := c.sessions.ResetForRun(ctx, sessionID, token); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to start scoring run")
	}
	c.registerRun(sessionID, token)
	return token, nil
}

func (c *Coordinator) registerRun(sessionID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.runs[sessionID]; ok {
		prev.cancel()
	}
	base := c.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	c.runs[sessionID] = &runHandle{token: token, ctx: ctx, cancel: cancel}
}

func (c *Coordinator) lookupRun(sessionID, token string) *runHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.runs[sessionID]
	if !ok || h.token != token {
		return nil
	}
	return h
}

func (c *Coordinator) clearRun(sessionID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.runs[sessionID]; ok && h.token == token {
		h.cancel()
		delete(c.runs, sessionID)
	}
}

// handle is the queue entry point. Pipeline failures are recorded on the
// session; the job itself never retries.
func (c *Coordinator) handle(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(jobPayload)
	if !ok {
		c.logger.Error("unexpected job payload", zap.String("job_id", job.ID))
		return nil
	}

	run := c.lookupRun(payload.SessionID, payload.RunToken)
	if run == nil {
		c.logger.Info("skipping superseded run",
			zap.String("session_id", payload.SessionID), zap.String("run_token", payload.RunToken))
		return nil
	}
	defer c.clearRun(payload.SessionID, payload.RunToken)

	c.metrics.RunStarted()
	defer c.metrics.RunFinished()

	if err := c.process(run.ctx, payload); err != nil {
		switch {
		case errors.Is(err, errSuperseded), errors.Is(err, context.Canceled):
			c.logger.Info("scoring run superseded",
				zap.String("session_id", payload.SessionID), zap.String("run_token", payload.RunToken))
		default:
			c.markError(payload, err)
		}
	}
	return nil
}

func (c *Coordinator) process(ctx context.Context, payload jobPayload) error {
	tracker := &progressTracker{}

	session, err := c.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load session")
	}

	if err := c.writeProgress(ctx, payload, tracker, models.SessionStatusProcessing, 5, "Preparing documents..."); err != nil {
		return err
	}

	var files []models.UploadedFile
	err = c.withRetry(ctx, "load files", func(ctx context.Context) error {
		var loadErr error
		files, loadErr = c.files.GetBySession(ctx, payload.SessionID)
		return loadErr
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load session files")
	}

	if len(files) == 0 && strings.TrimSpace(payload.Overrides.DocumentContent) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "no document content available")
	}

	c.extractAll(ctx, files)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.writeProgress(ctx, payload, tracker, models.SessionStatusProcessing, 15, "Documents processed"); err != nil {
		return err
	}

	documentContent := payload.Overrides.DocumentContent
	if strings.TrimSpace(documentContent) == "" {
		documentContent = c.assembler.Assemble(files)
	}
	if !corpus.HasContent(files) && strings.TrimSpace(payload.Overrides.DocumentContent) == "" {
		return appErrors.Clone(appErrors.ErrScoring, "no text could be extracted from the uploaded documents")
	}

	rfeOriginal := payload.Overrides.RFEOriginalContent
	if rfeOriginal == "" && session.DocumentType == models.DocumentTypeRFEResponse {
		rfeOriginal = findRFEOriginal(files)
	}

	if err := c.writeProgress(ctx, payload, tracker, models.SessionStatusScoring, 20, "Officer is reviewing the petition..."); err != nil {
		return err
	}

	beneficiary := ""
	if session.BeneficiaryName != nil {
		beneficiary = *session.BeneficiaryName
	}
	input := scoring.ScoreInput{
		SessionID:          session.ID,
		DocumentType:       session.DocumentType,
		VisaType:           session.VisaType,
		BeneficiaryName:    beneficiary,
		DocumentContent:    documentContent,
		RFEOriginalContent: rfeOriginal,
	}

	var result *models.ScoringResult
	scoreStart := time.Now()
	err = c.withRetry(ctx, "score", func(ctx context.Context) error {
		scoreCtx, cancel := context.WithTimeout(ctx, c.cfg.ScoringTimeout)
		defer cancel()
		var scoreErr error
		result, scoreErr = c.scorer.Run(scoreCtx, input, func(progress int, message string) {
			if err := c.writeProgress(ctx, payload, tracker, models.SessionStatusScoring, progress, message); err != nil {
				c.logger.Debug("progress write skipped",
					zap.String("session_id", payload.SessionID), zap.Error(err))
			}
		})
		return scoreErr
	})
	c.metrics.ObserveScoring(time.Since(scoreStart), err != nil)
	if err != nil {
		return err
	}

	// Confirm the token is still current before the upsert so a stale run
	// does not overwrite a newer run's result.
	saving := "Saving results..."
	ok, err := c.sessions.UpdateIfToken(ctx, payload.SessionID, payload.RunToken, repository.UpdateSessionParams{ProgressMessage: &saving})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update scoring progress")
	}
	if !ok {
		return errSuperseded
	}
	err = c.withRetry(ctx, "persist result", func(ctx context.Context) error {
		return c.results.Save(ctx, result)
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to persist scoring result")
	}

	return c.finish(ctx, payload)
}

// extractAll runs the per-file extraction fan-out. Individual failures mark
// the file and never abort the run; the corpus carries a placeholder instead.
func (c *Coordinator) extractAll(ctx context.Context, files []models.UploadedFile) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.cfg.Workers)

	for i := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(f *models.UploadedFile) {
			defer wg.Done()
			defer func() { <-sem }()
			c.extractOne(ctx, f)
		}(&files[i])
	}
	wg.Wait()
}

// extractOne extracts and classifies a single file, reusing stored text from
// a previous run when enough of it survives.
func (c *Coordinator) extractOne(ctx context.Context, f *models.UploadedFile) {
	if f.TextLength() > c.cfg.SkipMinChars {
		if f.Category == nil {
			category := extract.Classify(f.Filename, *f.ExtractedText)
			if err := c.files.Update(ctx, f.ID, repository.UpdateFileParams{Category: &category}); err != nil {
				c.logger.Warn("failed to backfill file category", zap.String("file_id", f.ID), zap.Error(err))
			} else {
				f.Category = &category
			}
		}
		return
	}

	extracting := models.FileStatusExtracting
	if err := c.files.Update(ctx, f.ID, repository.UpdateFileParams{Status: &extracting}); err != nil {
		c.logger.Warn("failed to mark file extracting", zap.String("file_id", f.ID), zap.Error(err))
	}

	var result extract.Result
	start := time.Now()
	err := c.withRetry(ctx, "extract "+f.Filename, func(ctx context.Context) error {
		data, err := c.blobs.Download(f.StoragePath)
		if err != nil {
			return fmt.Errorf("download %s: %w", f.Filename, err)
		}
		result, err = c.extractor.Extract(ctx, data, f.MimeType, f.Filename)
		return err
	})
	if err != nil {
		c.logger.Error("file extraction failed",
			zap.String("file_id", f.ID), zap.String("filename", f.Filename), zap.Error(err))
		c.metrics.RecordExtractionFailure()
		failed := models.FileStatusFailed
		if updateErr := c.files.Update(ctx, f.ID, repository.UpdateFileParams{Status: &failed}); updateErr != nil {
			c.logger.Warn("failed to mark file failed", zap.String("file_id", f.ID), zap.Error(updateErr))
		}
		f.Status = failed
		return
	}

	c.metrics.ObserveExtraction(result.Method, time.Since(start))
	if result.Method == extract.MethodPDFOCR {
		c.metrics.RecordOCRFallback()
	}

	completed := models.FileStatusCompleted
	category := extract.Classify(f.Filename, result.Text)
	params := repository.UpdateFileParams{
		Status:        &completed,
		ExtractedText: &result.Text,
		WordCount:     &result.WordCount,
		PageCount:     &result.PageCount,
		Category:      &category,
	}
	if err := c.files.Update(ctx, f.ID, params); err != nil {
		c.logger.Error("failed to persist extraction", zap.String("file_id", f.ID), zap.Error(err))
		return
	}
	f.Status = completed
	f.ExtractedText = &result.Text
	f.WordCount = &result.WordCount
	f.PageCount = &result.PageCount
	f.Category = &category
}

// writeProgress persists a guarded progress update. errSuperseded is returned
// when the run token no longer matches.
func (c *Coordinator) writeProgress(ctx context.Context, payload jobPayload, tracker *progressTracker, status models.SessionStatus, progress int, message string) error {
	value := tracker.advance(progress)
	if value < 0 {
		return nil
	}
	params := repository.UpdateSessionParams{
		Status:          &status,
		Progress:        &value,
		ProgressMessage: &message,
	}
	ok, err := c.sessions.UpdateIfToken(ctx, payload.SessionID, payload.RunToken, params)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update scoring progress")
	}
	if !ok {
		return errSuperseded
	}
	c.publisher.Publish(ctx, payload.SessionID, status, value, message)
	return nil
}

// finish performs the terminal transition. Progress reaches 100 here and
// nowhere else.
func (c *Coordinator) finish(ctx context.Context, payload jobPayload) error {
	status := models.SessionStatusCompleted
	progress := 100
	message := "Scoring complete"
	now := time.Now().UTC()
	params := repository.UpdateSessionParams{
		Status:          &status,
		Progress:        &progress,
		ProgressMessage: &message,
		CompletedAt:     &now,
	}
	ok, err := c.sessions.UpdateIfToken(ctx, payload.SessionID, payload.RunToken, params)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to complete scoring session")
	}
	if !ok {
		return errSuperseded
	}
	c.publisher.Publish(ctx, payload.SessionID, status, progress, message)
	c.logger.Info("scoring session completed",
		zap.String("session_id", payload.SessionID), zap.String("run_token", payload.RunToken))
	return nil
}

// markError records a failed run. The write is still token-guarded so a
// stale failure cannot mark a session that a newer run owns.
func (c *Coordinator) markError(payload jobPayload, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := models.SessionStatusError
	message := appErrors.FromError(cause).Message
	params := repository.UpdateSessionParams{
		Status:       &status,
		ErrorMessage: &message,
	}
	ok, err := c.sessions.UpdateIfToken(ctx, payload.SessionID, payload.RunToken, params)
	if err != nil {
		c.logger.Error("failed to record run failure",
			zap.String("session_id", payload.SessionID), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	c.publisher.Publish(ctx, payload.SessionID, status, 0, message)
	c.logger.Error("scoring session failed",
		zap.String("session_id", payload.SessionID), zap.String("run_token", payload.RunToken), zap.Error(cause))
}

// withRetry re-runs a step on failure with a fixed delay. Context
// cancellation is never retried.
func (c *Coordinator) withRetry(ctx context.Context, step string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.StepRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			c.logger.Warn("retrying pipeline step", zap.String("step", step), zap.Int("attempt", attempt))
			timer := time.NewTimer(c.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errSuperseded) || errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	return lastErr
}

func findRFEOriginal(files []models.UploadedFile) string {
	for i := range files {
		f := &files[i]
		if f.Category != nil && *f.Category == models.CategoryRFEOriginal && f.ExtractedText != nil {
			return *f.ExtractedText
		}
	}
	return ""
}
