package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseready/petition-score-api/internal/dto"
	"github.com/caseready/petition-score-api/internal/models"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
	"github.com/caseready/petition-score-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, req dto.CreateSessionRequest) (*dto.SessionResponse, error)
	Get(ctx context.Context, id string) (*dto.SessionResponse, *models.ScoringResult, error)
	Status(ctx context.Context, id string) (*dto.StatusResponse, error)
	Upload(ctx context.Context, sessionID, filename, mimeType string, size int64, r io.Reader) (*dto.FileResponse, error)
	Score(ctx context.Context, sessionID string, req dto.ScoreRequest) (*dto.ScoreAcceptedResponse, error)
	Results(ctx context.Context, sessionID string) (*models.ScoringResult, error)
}

// SessionHandler exposes the scoring session endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Create godoc
// @Summary Create a scoring session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Upload godoc
// @Summary Upload a document to a session
// @Tags Sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/files [post]
func (h *SessionHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing file field"))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	mimeType := fileHeader.Header.Get("Content-Type")
	file, err := h.service.Upload(c.Request.Context(), c.Param("id"), fileHeader.Filename, mimeType, fileHeader.Size, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// Score godoc
// @Summary Submit a session for scoring
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ScoreRequest false "Optional inline content"
// @Success 202 {object} response.Envelope
// @Router /sessions/{id}/score [post]
func (h *SessionHandler) Score(c *gin.Context) {
	var req dto.ScoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	accepted, err := h.service.Score(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, accepted)
}

// Get godoc
// @Summary Get session status and progress
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// Detail godoc
// @Summary Get session detail with files
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/detail [get]
func (h *SessionHandler) Detail(c *gin.Context) {
	session, result, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if result != nil {
		meta = map[string]interface{}{"results": result}
	}
	response.JSON(c, http.StatusOK, session, meta)
}

// Results godoc
// @Summary Get the persisted scoring result
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/results [get]
func (h *SessionHandler) Results(c *gin.Context) {
	result, err := h.service.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
