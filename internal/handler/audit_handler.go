package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-timetable/internal/dto"
	"github.com/noah-isme/sma-adp-timetable/internal/middleware"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
	"github.com/noah-isme/sma-adp-timetable/pkg/response"
)

type auditService interface {
	AuditAssignments(ctx context.Context, req dto.AuditRequest) (*models.ConflictReport, bool, error)
	AuditRun(ctx context.Context, runID string) (*models.ConflictReport, bool, error)
}

// AuditHandler serves conflict audit endpoints.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(svc auditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// Audit godoc
// @Summary Audit an assignment list for conflicts
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body dto.AuditRequest true "Audit payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/audit [post]
func (h *AuditHandler) Audit(c *gin.Context) {
	var req dto.AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid audit payload"))
		return
	}
	report, cached, err := h.service.AuditAssignments(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditMeta(c, report, cached)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// AuditRun godoc
// @Summary Audit a stored timetable run
// @Tags Audit
// @Produce json
// @Param id path string true "Timetable run ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/audit [get]
func (h *AuditHandler) AuditRun(c *gin.Context) {
	report, cached, err := h.service.AuditRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditMeta(c, report, cached)
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}
