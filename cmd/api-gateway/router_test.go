package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/iels-id/learner-api/internal/handler"
	"github.com/iels-id/learner-api/internal/service"
	"github.com/iels-id/learner-api/pkg/config"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	metrics := service.NewMetricsService()
	return newRouter(cfg, zap.NewNop(), routerDeps{
		verifier:     service.NewTokenVerifier("secret"),
		metrics:      metrics,
		health:       handler.NewMetricsHandler(metrics, nil),
		testAccess:   handler.NewTestAccessHandler(nil),
		certificates: handler.NewCertificateHandler(nil, nil),
	})
}

func TestRouterHealth(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterProtectsLearnerRoutes(t *testing.T) {
	r := testRouter()
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/tests/access"},
		{http.MethodGet, "/api/v1/tests/registrations/r/attempts"},
		{http.MethodPost, "/api/v1/tests/registrations/r/attempts"},
		{http.MethodPost, "/api/v1/tests/attempts/a/submit"},
		{http.MethodPost, "/api/v1/tests/attempts/a/certificate"},
		{http.MethodPost, "/api/v1/tests/attempts/a/certificate/pdf"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestRouterHidesDocsInProduction(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/index.html", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
