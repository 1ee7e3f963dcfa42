package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iels-id/learner-api/internal/dto"
	"github.com/iels-id/learner-api/internal/models"
	appErrors "github.com/iels-id/learner-api/pkg/errors"
	"github.com/iels-id/learner-api/pkg/response"
)

type testAccessService interface {
	VerifyAccess(ctx context.Context, email, userID string) *models.Registration
	AuthorizeRegistration(ctx context.Context, registrationID, email string) error
	AuthorizeAttempt(ctx context.Context, attemptID, email string) error
	GetAttempts(ctx context.Context, registrationID string) (*models.AttemptSet, error)
	CreateAttempt(ctx context.Context, req dto.CreateAttemptRequest) (*models.Attempt, error)
	SubmitScore(ctx context.Context, req dto.SubmitScoreRequest) (*models.Attempt, error)
}

// TestAccessHandler serves the learner test-access flow.
type TestAccessHandler struct {
	service testAccessService
}

// NewTestAccessHandler constructs the handler.
func NewTestAccessHandler(service testAccessService) *TestAccessHandler {
	return &TestAccessHandler{service: service}
}

// VerifyAccess godoc
// @Summary Verify the caller's test registration
// @Tags Tests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tests/access [post]
func (h *TestAccessHandler) VerifyAccess(c *gin.Context) {
	claims, ok := requireLearner(c)
	if !ok {
		return
	}
	reg := h.service.VerifyAccess(c.Request.Context(), claims.Email, claims.UserID())
	if reg == nil {
		response.Error(c, appErrors.ErrNotRegistered)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewRegistrationResponse(reg))
}

// ListAttempts godoc
// @Summary Latest pre-test and post-test attempts of a registration
// @Tags Tests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /tests/registrations/{id}/attempts [get]
func (h *TestAccessHandler) ListAttempts(c *gin.Context) {
	registrationID, ok := h.authorizeRegistration(c)
	if !ok {
		return
	}
	set, err := h.service.GetAttempts(c.Request.Context(), registrationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, set)
}

// CreateAttempt godoc
// @Summary Start an attempt (idempotent per registration and kind)
// @Tags Tests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Param payload body dto.CreateAttemptRequest true "Attempt payload"
// @Success 201 {object} response.Envelope
// @Router /tests/registrations/{id}/attempts [post]
func (h *TestAccessHandler) CreateAttempt(c *gin.Context) {
	registrationID, ok := h.authorizeRegistration(c)
	if !ok {
		return
	}
	var req dto.CreateAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid attempt payload"))
		return
	}
	req.RegistrationID = registrationID
	attempt, err := h.service.CreateAttempt(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attempt)
}

// SubmitScore godoc
// @Summary Submit section scores and complete an attempt
// @Tags Tests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attempt ID"
// @Param payload body dto.SubmitScoreRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tests/attempts/{id}/submit [post]
func (h *TestAccessHandler) SubmitScore(c *gin.Context) {
	attemptID, ok := authorizeAttempt(c, h.service)
	if !ok {
		return
	}
	var req dto.SubmitScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid score payload"))
		return
	}
	req.AttemptID = attemptID
	attempt, err := h.service.SubmitScore(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt)
}

func (h *TestAccessHandler) authorizeRegistration(c *gin.Context) (string, bool) {
	claims, ok := requireLearner(c)
	if !ok {
		return "", false
	}
	id := c.Param("id")
	if err := h.service.AuthorizeRegistration(c.Request.Context(), id, claims.Email); err != nil {
		response.Error(c, err)
		return "", false
	}
	return id, true
}

type attemptAuthorizer interface {
	AuthorizeAttempt(ctx context.Context, attemptID, email string) error
}

func authorizeAttempt(c *gin.Context, authz attemptAuthorizer) (string, bool) {
	claims, ok := requireLearner(c)
	if !ok {
		return "", false
	}
	id := c.Param("id")
	if err := authz.AuthorizeAttempt(c.Request.Context(), id, claims.Email); err != nil {
		response.Error(c, err)
		return "", false
	}
	return id, true
}
