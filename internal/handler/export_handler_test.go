package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

type reportRendererMock struct {
	data []byte
	err  error
}

func (m *reportRendererMock) RenderReport(ctx context.Context, sessionID string) ([]byte, error) {
	return m.data, m.err
}

func TestExportHandlerReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewExportHandler(&reportRendererMock{data: []byte("%PDF-1.4 fake")})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/sessions/s1/report.pdf", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.Report(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "scoring-report-s1.pdf")
	assert.Equal(t, "%PDF-1.4 fake", w.Body.String())
}

func TestExportHandlerReportNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewExportHandler(&reportRendererMock{err: appErrors.Clone(appErrors.ErrNotFound, "no scoring result for this session")})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/sessions/s1/report.pdf", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.Report(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
