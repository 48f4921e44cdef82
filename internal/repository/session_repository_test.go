package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseready/petition-score-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestSessionCreateGeneratesDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO scoring_sessions").WillReturnResult(sqlmock.NewResult(0, 1))

	session := &models.ScoringSession{
		DocumentType: models.DocumentTypeFullPetition,
		VisaType:     models.VisaTypeO1A,
	}
	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionStatusCreated, session.Status)
	assert.False(t, session.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGetByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "document_type", "visa_type", "beneficiary_name", "status", "progress", "progress_message", "error_message", "run_token", "created_at", "completed_at"}).
		AddRow("s1", "full_petition", "O-1A", "Jane Roe", "processing", 15, "Documents processed", nil, "tok-1", now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, document_type, visa_type, beneficiary_name, status, progress, progress_message, error_message, run_token, created_at, completed_at FROM scoring_sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(rows)

	session, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProcessing, session.Status)
	assert.Equal(t, 15, session.Progress)
	require.NotNil(t, session.RunToken)
	assert.Equal(t, "tok-1", *session.RunToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionUpdateIfTokenMatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	status := models.SessionStatusScoring
	progress := 20
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scoring_sessions SET status = $1, progress = $2 WHERE id = $3 AND run_token = $4")).
		WithArgs(status, progress, "s1", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateIfToken(context.Background(), "s1", "tok-1", UpdateSessionParams{Status: &status, Progress: &progress})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionUpdateIfTokenSuperseded(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	progress := 50
	mock.ExpectExec("UPDATE scoring_sessions SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateIfToken(context.Background(), "s1", "stale-token", UpdateSessionParams{Progress: &progress})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionUpdateNoFieldsIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	err := repo.Update(context.Background(), "s1", UpdateSessionParams{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionResetForRun(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("UPDATE scoring_sessions").
		WithArgs("s1", "tok-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResetForRun(context.Background(), "s1", "tok-2")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionListUnfinished(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "document_type", "visa_type", "beneficiary_name", "status", "progress", "progress_message", "error_message", "run_token", "created_at", "completed_at"}).
		AddRow("s1", "full_petition", "O-1A", nil, "processing", 5, nil, nil, "tok-1", now, nil).
		AddRow("s2", "rfe_response", "EB-1A", nil, "scoring", 40, nil, nil, "tok-2", now, nil)
	mock.ExpectQuery("SELECT .+ FROM scoring_sessions WHERE status IN").
		WithArgs(20).
		WillReturnRows(rows)

	sessions, err := repo.ListUnfinished(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, models.SessionStatusScoring, sessions[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
