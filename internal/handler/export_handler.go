package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseready/petition-score-api/pkg/response"
)

type reportRenderer interface {
	RenderReport(ctx context.Context, sessionID string) ([]byte, error)
}

// ExportHandler serves PDF report downloads.
type ExportHandler struct {
	service reportRenderer
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc reportRenderer) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Report godoc
// @Summary Download the scoring report as PDF
// @Tags Sessions
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Router /sessions/{id}/report.pdf [get]
func (h *ExportHandler) Report(c *gin.Context) {
	sessionID := c.Param("id")
	data, err := h.service.RenderReport(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="scoring-report-%s.pdf"`, sessionID))
	c.Data(http.StatusOK, "application/pdf", data)
}
