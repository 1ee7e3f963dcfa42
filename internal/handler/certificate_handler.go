package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iels-id/learner-api/internal/dto"
	"github.com/iels-id/learner-api/internal/models"
	"github.com/iels-id/learner-api/internal/service"
	appErrors "github.com/iels-id/learner-api/pkg/errors"
	"github.com/iels-id/learner-api/pkg/response"
)

type certificateService interface {
	GetOrCreate(ctx context.Context, attemptID string) (*models.Certificate, error)
	RenderPDF(ctx context.Context, attemptID string) (*dto.CertificateDownloadResponse, error)
	Verify(ctx context.Context, code string) (*dto.CertificateVerification, error)
	Download(ctx context.Context, token string) (*service.CertificateDownload, error)
}

// CertificateHandler exposes certificate issuance and public verification.
type CertificateHandler struct {
	certificates certificateService
	attempts     attemptAuthorizer
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(certificates certificateService, attempts attemptAuthorizer) *CertificateHandler {
	return &CertificateHandler{certificates: certificates, attempts: attempts}
}

// Issue godoc
// @Summary Get or issue the certificate of a completed attempt
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /tests/attempts/{id}/certificate [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	attemptID, ok := authorizeAttempt(c, h.attempts)
	if !ok {
		return
	}
	cert, err := h.certificates.GetOrCreate(c.Request.Context(), attemptID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if cert == nil {
		response.Error(c, appErrors.ErrAttemptIncomplete)
		return
	}
	response.JSON(c, http.StatusOK, cert)
}

// RenderPDF godoc
// @Summary Render the certificate PDF and return a signed download link
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /tests/attempts/{id}/certificate/pdf [post]
func (h *CertificateHandler) RenderPDF(c *gin.Context) {
	attemptID, ok := authorizeAttempt(c, h.attempts)
	if !ok {
		return
	}
	link, err := h.certificates.RenderPDF(c.Request.Context(), attemptID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Verify godoc
// @Summary Public certificate verification
// @Tags Certificates
// @Produce json
// @Param code path string true "Verification code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/verify/{code} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.certificates.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Download godoc
// @Summary Download a certificate PDF via signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /certificates/download/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	result, err := h.certificates.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close()

	var size int64 = -1
	if info, statErr := result.File.Stat(); statErr == nil {
		size = info.Size()
	}
	c.DataFromReader(http.StatusOK, size, "application/pdf", result.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", result.Filename),
	})
}
