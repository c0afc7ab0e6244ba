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

const maxInlineCourses = 2048

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error)
	List(ctx context.Context, query dto.TimetableRunQuery) ([]models.TimetableRun, error)
	GetAssignments(ctx context.Context, runID string) ([]models.Assignment, error)
	Delete(ctx context.Context, runID string) error
	Proposal(ctx context.Context, id string) (*dto.GenerateTimetableResponse, error)
}

type solveJobService interface {
	Submit(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.SolveJobResponse, error)
	Status(ctx context.Context, id string) (*dto.SolveJobResponse, error)
}

// TimetableHandler exposes solve, persistence and async job endpoints.
type TimetableHandler struct {
	service timetableService
	jobs    solveJobService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc timetableService, jobs solveJobService) *TimetableHandler {
	return &TimetableHandler{service: svc, jobs: jobs}
}

// Generate godoc
// @Summary Solve a term into a timetable proposal
// @Description Runs the assignment engine synchronously. The proposal is kept for a limited time and must be saved explicitly.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generate timetable payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetProposalMeta(c, result)
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// Proposal godoc
// @Summary Get a pending proposal
// @Tags Timetable
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/proposals/{id} [get]
func (h *TimetableHandler) Proposal(c *gin.Context) {
	result, err := h.service.Proposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetProposalMeta(c, result)
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// Save godoc
// @Summary Persist a proposal as a timetable run
// @Description Re-audits the proposal; critical or high conflicts reject the save with 409.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.SaveTimetableRequest true "Save timetable payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/save [post]
func (h *TimetableHandler) Save(c *gin.Context) {
	var req dto.SaveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	result, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List timetable runs of a term
// @Tags Timetable
// @Produce json
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	result, err := h.service.List(c.Request.Context(), dto.TimetableRunQuery{TermID: c.Query("termId")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Assignments godoc
// @Summary Get assignments of a timetable run
// @Tags Timetable
// @Produce json
// @Param id path string true "Timetable run ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/assignments [get]
func (h *TimetableHandler) Assignments(c *gin.Context) {
	result, err := h.service.GetAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete a draft timetable run
// @Tags Timetable
// @Param id path string true "Timetable run ID"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SubmitJob godoc
// @Summary Queue an asynchronous solve
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generate timetable payload"
// @Success 202 {object} response.Envelope
// @Router /timetables/jobs [post]
func (h *TimetableHandler) SubmitJob(c *gin.Context) {
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}
	result, err := h.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// JobStatus godoc
// @Summary Get asynchronous solve status
// @Tags Timetable
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/jobs/{id} [get]
func (h *TimetableHandler) JobStatus(c *gin.Context) {
	result, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func bindGenerateRequest(c *gin.Context) (dto.GenerateTimetableRequest, bool) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return req, false
	}
	if len(req.Courses) > maxInlineCourses {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courses exceeds supported limit"))
		return req, false
	}
	return req, true
}
