package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iels-id/learner-api/internal/dto"
	"github.com/iels-id/learner-api/internal/models"
	appErrors "github.com/iels-id/learner-api/pkg/errors"
	"github.com/iels-id/learner-api/pkg/export"
)

const (
	certificateCodeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	certificateNumberSuffix  = 6
	verificationCodeLength   = 10
	certificateIssueAttempts = 3
	certificateCachePrefix   = "certificate:verify:"
)

type certificateStore interface {
	FindValidByAttempt(ctx context.Context, attemptID string) (*models.Certificate, error)
	Insert(ctx context.Context, cert *models.Certificate) (bool, error)
	FindDetailByCode(ctx context.Context, code string) (*models.CertificateDetail, error)
	FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error)
}

type certificateAttemptLoader interface {
	FindWithRegistration(ctx context.Context, id string) (*models.AttemptWithRegistration, error)
}

type verificationCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

type certificateRenderer interface {
	Render(doc export.CertificateDocument) ([]byte, error)
}

type certificateFiles interface {
	Save(filename string, data []byte) (string, error)
	Exists(filename string) bool
	Open(filename string) (*os.File, error)
}

type downloadSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
	Parse(token string) (subject, relPath string, expiresAt time.Time, err error)
}

// CertificateServiceConfig controls certificate links.
type CertificateServiceConfig struct {
	// AppBaseURL is the public site that hosts the verification page.
	AppBaseURL string
	// DownloadPath is the API path prefix serving signed PDF downloads.
	DownloadPath string
	CacheTTL     time.Duration
}

// CertificateDownload is an opened certificate PDF.
type CertificateDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// CertificateService issues, verifies and renders certificates.
type CertificateService struct {
	certificates certificateStore
	attempts     certificateAttemptLoader
	cache        verificationCache
	renderer     certificateRenderer
	files        certificateFiles
	signer       downloadSigner
	metrics      *MetricsService
	logger       *zap.Logger
	cfg          CertificateServiceConfig
	randomCode   func(n int) (string, error)
	now          func() time.Time
}

// NewCertificateService constructs a CertificateService.
func NewCertificateService(certificates certificateStore, attempts certificateAttemptLoader, cache verificationCache, renderer certificateRenderer, files certificateFiles, signer downloadSigner, metrics *MetricsService, logger *zap.Logger, cfg CertificateServiceConfig) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")
	cfg.DownloadPath = strings.TrimRight(cfg.DownloadPath, "/")
	return &CertificateService{
		certificates: certificates,
		attempts:     attempts,
		cache:        cache,
		renderer:     renderer,
		files:        files,
		signer:       signer,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
		randomCode:   randomCode,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the valid certificate of an attempt, issuing one when the
// attempt is completed and has none. It returns nil for incomplete attempts.
func (s *CertificateService) GetOrCreate(ctx context.Context, attemptID string) (*models.Certificate, error) {
	existing, err := s.findValid(ctx, attemptID)
	if err != nil || existing != nil {
		return existing, err
	}

	attempt, err := s.attempts.FindWithRegistration(ctx, attemptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attempt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt")
	}
	if !attempt.IsCompleted() {
		return nil, nil
	}

	for i := 0; i < certificateIssueAttempts; i++ {
		cert, err := s.newCertificate(attemptID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate certificate identifiers")
		}
		inserted, err := s.certificates.Insert(ctx, cert)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue certificate")
		}
		if inserted {
			s.metrics.RecordCertificateIssued()
			s.logger.Info("certificate issued", zap.String("attempt_id", attemptID), zap.String("certificate_number", cert.CertificateNumber))
			return cert, nil
		}
		// lost a race for this attempt, or hit a number/code collision
		existing, err := s.findValid(ctx, attemptID)
		if err != nil || existing != nil {
			return existing, err
		}
	}
	return nil, appErrors.Clone(appErrors.ErrInternal, "could not allocate unique certificate identifiers")
}

func (s *CertificateService) findValid(ctx context.Context, attemptID string) (*models.Certificate, error) {
	cert, err := s.certificates.FindValidByAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

func (s *CertificateService) newCertificate(attemptID string) (*models.Certificate, error) {
	suffix, err := s.randomCode(certificateNumberSuffix)
	if err != nil {
		return nil, err
	}
	code, err := s.randomCode(verificationCodeLength)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &models.Certificate{
		AttemptID:         attemptID,
		CertificateNumber: fmt.Sprintf("IELS-%d-%s", now.Year(), suffix),
		VerificationCode:  code,
		IsValid:           true,
		CertificateURL:    s.VerificationURL(code),
		IssuedAt:          now,
	}, nil
}

// VerificationURL is the public page confirming a certificate.
func (s *CertificateService) VerificationURL(code string) string {
	return s.cfg.AppBaseURL + "/certificates/verify/" + code
}

// Verify resolves a verification code to the public certificate details.
func (s *CertificateService) Verify(ctx context.Context, code string) (*dto.CertificateVerification, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > 64 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}

	key := certificateCachePrefix + code
	var cached dto.CertificateVerification
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	detail, err := s.certificates.FindDetailByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify certificate")
	}

	result := &dto.CertificateVerification{
		CertificateNumber: detail.CertificateNumber,
		VerificationCode:  detail.VerificationCode,
		Valid:             detail.IsValid,
		HolderName:        detail.HolderName,
		TestType:          detail.TestType,
		AttemptType:       detail.AttemptType,
		OverallScore:      detail.OverallScore,
		CompletedAt:       detail.CompletedAt,
		IssuedAt:          detail.IssuedAt,
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, result, s.cfg.CacheTTL)
	}
	return result, nil
}

// RenderPDF makes sure the certificate PDF exists on disk and returns a signed link to it.
func (s *CertificateService) RenderPDF(ctx context.Context, attemptID string) (*dto.CertificateDownloadResponse, error) {
	cert, err := s.GetOrCreate(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, appErrors.ErrAttemptIncomplete
	}

	filename := cert.CertificateNumber + ".pdf"
	if !s.files.Exists(filename) {
		detail, err := s.certificates.FindDetailByID(ctx, cert.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
		}
		data, err := s.renderer.Render(certificateDocument(detail, s.VerificationURL(detail.VerificationCode)))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
		}
		if _, err := s.files.Save(filename, data); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
		}
	}

	token, expiresAt, err := s.signer.Generate(cert.ID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.CertificateDownloadResponse{
		CertificateID: cert.ID,
		DownloadURL:   s.cfg.DownloadPath + "/" + token,
		ExpiresAt:     expiresAt,
	}, nil
}

// Download validates a signed token and opens the certificate PDF.
func (s *CertificateService) Download(ctx context.Context, token string) (*CertificateDownload, error) {
	_, relPath, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate")
	}
	return &CertificateDownload{File: file, Filename: filepath.Base(relPath), ExpiresAt: expiresAt}, nil
}

func certificateDocument(detail *models.CertificateDetail, verificationURL string) export.CertificateDocument {
	score := "-"
	if detail.OverallScore != nil {
		score = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", *detail.OverallScore), "0"), ".")
	}
	kind := "Pre-Test"
	if detail.AttemptType == models.AttemptKindPostTest {
		kind = "Post-Test"
	}
	return export.CertificateDocument{
		HolderName:        detail.HolderName,
		CertificateNumber: detail.CertificateNumber,
		TestType:          strings.ToUpper(detail.TestType),
		AttemptKind:       kind,
		OverallScore:      score,
		IssuedAt:          detail.IssuedAt,
		VerificationURL:   verificationURL,
	}
}

func randomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(certificateCodeAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = certificateCodeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
