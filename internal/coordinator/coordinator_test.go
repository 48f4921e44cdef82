package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caseready/petition-score-api/internal/corpus"
	"github.com/caseready/petition-score-api/internal/extract"
	"github.com/caseready/petition-score-api/internal/models"
	"github.com/caseready/petition-score-api/internal/repository"
	"github.com/caseready/petition-score-api/internal/scoring"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
	"github.com/caseready/petition-score-api/pkg/jobs"
)

type sessionWrite struct {
	status   models.SessionStatus
	progress int
}

type memSessions struct {
	mu      sync.Mutex
	session models.ScoringSession
	writes  []sessionWrite

	// flipAfter replaces the stored token after this many guarded writes,
	// simulating a newer submission taking over mid-run.
	flipAfter   int
	guardedSeen int
}

func newMemSessions(session models.ScoringSession) *memSessions {
	return &memSessions{session: session, flipAfter: -1}
}

func (m *memSessions) GetByID(_ context.Context, id string) (*models.ScoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.ID != id {
		return nil, errors.New("not found")
	}
	s := m.session
	return &s, nil
}

func (m *memSessions) ResetForRun(_ context.Context, id, runToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.ID != id {
		return errors.New("not found")
	}
	m.session.Status = models.SessionStatusProcessing
	m.session.Progress = 0
	m.session.ErrorMessage = nil
	m.session.RunToken = &runToken
	m.session.CompletedAt = nil
	return nil
}

func (m *memSessions) UpdateIfToken(_ context.Context, id, runToken string, params repository.UpdateSessionParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.ID != id || m.session.RunToken == nil || *m.session.RunToken != runToken {
		return false, nil
	}
	m.guardedSeen++
	if params.Status != nil {
		m.session.Status = *params.Status
	}
	if params.Progress != nil {
		m.session.Progress = *params.Progress
	}
	if params.ProgressMessage != nil {
		m.session.ProgressMessage = params.ProgressMessage
	}
	if params.ErrorMessage != nil {
		m.session.ErrorMessage = params.ErrorMessage
	}
	if params.CompletedAt != nil {
		m.session.CompletedAt = params.CompletedAt
	}
	m.writes = append(m.writes, sessionWrite{status: m.session.Status, progress: m.session.Progress})
	if m.flipAfter >= 0 && m.guardedSeen >= m.flipAfter {
		other := "other-token"
		m.session.RunToken = &other
	}
	return true, nil
}

func (m *memSessions) ListUnfinished(context.Context, int) ([]models.ScoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Status == models.SessionStatusProcessing || m.session.Status == models.SessionStatusScoring {
		return []models.ScoringSession{m.session}, nil
	}
	return nil, nil
}

func (m *memSessions) snapshot() models.ScoringSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *memSessions) progressValues() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := make([]int, len(m.writes))
	for i, w := range m.writes {
		values[i] = w.progress
	}
	return values
}

type memFiles struct {
	mu    sync.Mutex
	files []models.UploadedFile
}

func (m *memFiles) GetBySession(_ context.Context, sessionID string) ([]models.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.UploadedFile, 0, len(m.files))
	for _, f := range m.files {
		if f.SessionID == sessionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFiles) Update(_ context.Context, id string, params repository.UpdateFileParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.files {
		if m.files[i].ID != id {
			continue
		}
		if params.Status != nil {
			m.files[i].Status = *params.Status
		}
		if params.ExtractedText != nil {
			m.files[i].ExtractedText = params.ExtractedText
		}
		if params.WordCount != nil {
			m.files[i].WordCount = params.WordCount
		}
		if params.PageCount != nil {
			m.files[i].PageCount = params.PageCount
		}
		if params.Category != nil {
			m.files[i].Category = params.Category
		}
		return nil
	}
	return errors.New("file not found")
}

type memResults struct {
	mu    sync.Mutex
	saved []*models.ScoringResult
}

func (m *memResults) Save(_ context.Context, result *models.ScoringResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, result)
	return nil
}

func (m *memResults) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.saved[:0]
	for _, r := range m.saved {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	m.saved = kept
	return nil
}

func (m *memResults) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func (m *memResults) latest() *models.ScoringResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

type memBlobs struct {
	data map[string][]byte
}

func (m *memBlobs) Download(storagePath string) ([]byte, error) {
	data, ok := m.data[storagePath]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

type stubExtractor struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]bool
}

func (s *stubExtractor) Extract(_ context.Context, data []byte, _, filename string) (extract.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, filename)
	s.mu.Unlock()
	if s.failFor[filename] {
		return extract.Result{}, errors.New("scanner jam")
	}
	text := "Extracted contents of " + filename + ": " + string(data)
	return extract.Result{Text: text, WordCount: 5, PageCount: 1, Method: extract.MethodPDFText}, nil
}

type stubRunner struct {
	mu     sync.Mutex
	inputs []scoring.ScoreInput
	err    error
}

func (s *stubRunner) Run(_ context.Context, input scoring.ScoreInput, onProgress scoring.ProgressFunc) (*models.ScoringResult, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if onProgress != nil {
		onProgress(60, "Evaluating evidence...")
		onProgress(100, "Scoring complete")
	}
	return &models.ScoringResult{SessionID: input.SessionID, OverallScore: 75, OverallRating: "good"}, nil
}

func (s *stubRunner) lastInput() scoring.ScoreInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[len(s.inputs)-1]
}

func strPtr(s string) *string { return &s }

func newTestCoordinator(sessions *memSessions, files *memFiles, results *memResults, blobs *memBlobs, extractor *stubExtractor, runner *stubRunner) *Coordinator {
	return New(sessions, files, results, blobs, extractor,
		corpus.NewAssembler(0), runner, nil, nil, zap.NewNop(),
		Config{Workers: 2, StepRetries: 1, RetryDelay: time.Millisecond, ScoringTimeout: time.Second})
}

func runSynchronously(t *testing.T, c *Coordinator, sessionID, token string, overrides Overrides) {
	t.Helper()
	c.registerRun(sessionID, token)
	require.NoError(t, c.handle(context.Background(), jobs.Job{
		ID:      token,
		Type:    "score-session",
		Payload: jobPayload{SessionID: sessionID, RunToken: token, Overrides: overrides},
	}))
}

func TestCoordinator_CompletesRun(t *testing.T) {
	longText := strings.Repeat("previously extracted contract text ", 10)
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1A})
	token := "run-1"
	sessions.session.RunToken = &token

	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "support.pdf", MimeType: "application/pdf", StoragePath: "s-1/support.pdf"},
		{ID: "f-2", SessionID: "s-1", Filename: "contract.pdf", MimeType: "application/pdf", ExtractedText: &longText},
		{ID: "f-3", SessionID: "s-1", Filename: "broken.pdf", MimeType: "application/pdf", StoragePath: "s-1/broken.pdf"},
	}}
	results := &memResults{}
	blobs := &memBlobs{data: map[string][]byte{
		"s-1/support.pdf": []byte("support letter body"),
		"s-1/broken.pdf":  []byte("unreadable"),
	}}
	extractor := &stubExtractor{failFor: map[string]bool{"broken.pdf": true}}
	runner := &stubRunner{}

	c := newTestCoordinator(sessions, files, results, blobs, extractor, runner)
	runSynchronously(t, c, "s-1", token, Overrides{})

	final := sessions.snapshot()
	assert.Equal(t, models.SessionStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, 1, results.count())

	// Memoized file is never re-extracted; the failed one retried once.
	assert.NotContains(t, extractor.calls, "contract.pdf")

	input := runner.lastInput()
	assert.Contains(t, input.DocumentContent, "previously extracted contract text")
	assert.Contains(t, input.DocumentContent, "support letter body")
	assert.Contains(t, input.DocumentContent, extract.PlaceholderNoText)
}

func TestCoordinator_ProgressMonotonicAndTerminal(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeEB1})
	token := "run-1"
	sessions.session.RunToken = &token

	text := strings.Repeat("petition narrative ", 20)
	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "petition.pdf", MimeType: "application/pdf", ExtractedText: &text},
	}}
	results := &memResults{}
	c := newTestCoordinator(sessions, files, results, &memBlobs{}, &stubExtractor{}, &stubRunner{})

	runSynchronously(t, c, "s-1", token, Overrides{})

	values := sessions.progressValues()
	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress moved backwards at write %d", i)
	}
	assert.Equal(t, 100, values[len(values)-1])
	for _, v := range values[:len(values)-1] {
		assert.Less(t, v, 100)
	}
}

func TestCoordinator_NoFilesRejectedBeforeAnyTransition(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1B, Status: models.SessionStatusCreated})

	runner := &stubRunner{}
	c := newTestCoordinator(sessions, &memFiles{}, &memResults{}, &memBlobs{}, &stubExtractor{}, runner)

	_, err := c.Submit(context.Background(), "s-1", Overrides{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, "no document content available", appErrors.FromError(err).Message)

	// The rejected submission never touches the session row.
	final := sessions.snapshot()
	assert.Equal(t, models.SessionStatusCreated, final.Status)
	assert.Nil(t, final.RunToken)
	assert.Nil(t, final.ErrorMessage)
	assert.Empty(t, runner.inputs)
}

func TestCoordinator_NoFilesWithInlineContentRuns(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1B, Status: models.SessionStatusCreated})

	runner := &stubRunner{}
	c := newTestCoordinator(sessions, &memFiles{}, &memResults{}, &memBlobs{}, &stubExtractor{}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	_, err := c.Submit(ctx, "s-1", Overrides{DocumentContent: "inline petition text"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sessions.snapshot().Status == models.SessionStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCoordinator_NoUsableContentIsScoringFailure(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1A})
	token := "run-1"
	sessions.session.RunToken = &token

	// Extraction fails for the only file, so the corpus ends up empty.
	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "scan.pdf", MimeType: "application/pdf", StoragePath: "s-1/scan.pdf"},
	}}
	blobs := &memBlobs{data: map[string][]byte{"s-1/scan.pdf": []byte("noise")}}
	extractor := &stubExtractor{failFor: map[string]bool{"scan.pdf": true}}
	runner := &stubRunner{}
	c := newTestCoordinator(sessions, files, &memResults{}, blobs, extractor, runner)

	err := c.process(context.Background(), jobPayload{SessionID: "s-1", RunToken: token})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScoring.Code, appErrors.FromError(err).Code)
	assert.Empty(t, runner.inputs)
}

func TestCoordinator_OverrideContentBypassesAssembly(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeRFEResponse, VisaType: models.VisaTypeO1A, BeneficiaryName: strPtr("Dana Reyes")})
	token := "run-1"
	sessions.session.RunToken = &token

	runner := &stubRunner{}
	c := newTestCoordinator(sessions, &memFiles{}, &memResults{}, &memBlobs{}, &stubExtractor{}, runner)

	runSynchronously(t, c, "s-1", token, Overrides{
		DocumentContent:    "inline response text",
		RFEOriginalContent: "inline original",
	})

	final := sessions.snapshot()
	assert.Equal(t, models.SessionStatusCompleted, final.Status)

	input := runner.lastInput()
	assert.Equal(t, "inline response text", input.DocumentContent)
	assert.Equal(t, "inline original", input.RFEOriginalContent)
	assert.Equal(t, "Dana Reyes", input.BeneficiaryName)
}

func TestCoordinator_RFEOriginalPulledFromFiles(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeRFEResponse, VisaType: models.VisaTypeO1A})
	token := "run-1"
	sessions.session.RunToken = &token

	originalText := strings.Repeat("the petitioner has not established ", 10)
	responseText := strings.Repeat("in response to the request ", 10)
	rfeOriginal := models.CategoryRFEOriginal
	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "rfe-notice.pdf", MimeType: "application/pdf", ExtractedText: &originalText, Category: &rfeOriginal},
		{ID: "f-2", SessionID: "s-1", Filename: "response.pdf", MimeType: "application/pdf", ExtractedText: &responseText},
	}}

	runner := &stubRunner{}
	c := newTestCoordinator(sessions, files, &memResults{}, &memBlobs{}, &stubExtractor{}, runner)

	runSynchronously(t, c, "s-1", token, Overrides{})

	input := runner.lastInput()
	assert.Contains(t, input.RFEOriginalContent, "has not established")
}

func TestCoordinator_SupersededRunStopsWriting(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1A})
	token := "run-1"
	sessions.session.RunToken = &token
	// Token flips right after the first guarded write: everything past the
	// opening progress update belongs to the newer run.
	sessions.flipAfter = 1

	text := strings.Repeat("petition narrative ", 20)
	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "petition.pdf", MimeType: "application/pdf", ExtractedText: &text},
	}}
	results := &memResults{}
	c := newTestCoordinator(sessions, files, results, &memBlobs{}, &stubExtractor{}, &stubRunner{})

	runSynchronously(t, c, "s-1", token, Overrides{})

	final := sessions.snapshot()
	assert.NotEqual(t, models.SessionStatusCompleted, final.Status)
	assert.NotEqual(t, models.SessionStatusError, final.Status)
	assert.Equal(t, 0, results.count())
}

func TestCoordinator_ScoringFailureMarksError(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeP1})
	token := "run-1"
	sessions.session.RunToken = &token

	text := strings.Repeat("petition narrative ", 20)
	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "petition.pdf", MimeType: "application/pdf", ExtractedText: &text},
	}}
	runner := &stubRunner{err: errors.New("model unavailable")}
	c := newTestCoordinator(sessions, files, &memResults{}, &memBlobs{}, &stubExtractor{}, runner)

	runSynchronously(t, c, "s-1", token, Overrides{})

	final := sessions.snapshot()
	assert.Equal(t, models.SessionStatusError, final.Status)
	require.NotNil(t, final.ErrorMessage)
	// Scoring was retried once before giving up.
	assert.Len(t, runner.inputs, 2)
}

func TestCoordinator_SubmitSupersedesPreviousRun(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1A})

	text := strings.Repeat("petition narrative ", 20)
	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "petition.pdf", MimeType: "application/pdf", ExtractedText: &text},
	}}
	results := &memResults{}
	c := newTestCoordinator(sessions, files, results, &memBlobs{}, &stubExtractor{}, &stubRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	first, err := c.Submit(ctx, "s-1", Overrides{})
	require.NoError(t, err)
	second, err := c.Submit(ctx, "s-1", Overrides{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.Eventually(t, func() bool {
		s := sessions.snapshot()
		return s.Status == models.SessionStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	s := sessions.snapshot()
	require.NotNil(t, s.RunToken)
	assert.Equal(t, second, *s.RunToken)
}

func TestCoordinator_ConcurrentRunStartsStayAligned(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1A})
	c := newTestCoordinator(sessions, &memFiles{}, &memResults{}, &memBlobs{}, &stubExtractor{}, &stubRunner{})

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.startRun(context.Background(), "s-1")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Whichever start won, the registry and the session row name the same run.
	final := sessions.snapshot()
	require.NotNil(t, final.RunToken)
	c.mu.Lock()
	handle := c.runs["s-1"]
	c.mu.Unlock()
	require.NotNil(t, handle)
	assert.Equal(t, *final.RunToken, handle.token)
}

func TestCoordinator_SubmitClearsStaleResult(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1", DocumentType: models.DocumentTypeFullPetition, VisaType: models.VisaTypeO1A})

	text := strings.Repeat("petition narrative ", 20)
	files := &memFiles{files: []models.UploadedFile{
		{ID: "f-1", SessionID: "s-1", Filename: "petition.pdf", MimeType: "application/pdf", ExtractedText: &text},
	}}
	results := &memResults{saved: []*models.ScoringResult{{SessionID: "s-1", OverallScore: 10}}}
	c := newTestCoordinator(sessions, files, results, &memBlobs{}, &stubExtractor{}, &stubRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	_, err := c.Submit(ctx, "s-1", Overrides{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sessions.snapshot().Status == models.SessionStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// The rerun replaced the stale row instead of stacking a second one.
	require.Equal(t, 1, results.count())
	assert.Equal(t, 75, results.latest().OverallScore)
}

func TestCoordinator_SubmitUnknownSession(t *testing.T) {
	sessions := newMemSessions(models.ScoringSession{ID: "s-1"})
	c := newTestCoordinator(sessions, &memFiles{}, &memResults{}, &memBlobs{}, &stubExtractor{}, &stubRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	_, err := c.Submit(ctx, "missing", Overrides{})
	require.Error(t, err)
}

func TestProgressTracker(t *testing.T) {
	tracker := &progressTracker{}
	assert.Equal(t, 5, tracker.advance(5))
	assert.Equal(t, -1, tracker.advance(5))
	assert.Equal(t, -1, tracker.advance(3))
	assert.Equal(t, 20, tracker.advance(20))
	assert.Equal(t, 99, tracker.advance(100))
}
