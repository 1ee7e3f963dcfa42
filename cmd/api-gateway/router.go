package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/iels-id/learner-api/api/swagger"
	"github.com/iels-id/learner-api/internal/handler"
	"github.com/iels-id/learner-api/internal/middleware"
	"github.com/iels-id/learner-api/internal/service"
	"github.com/iels-id/learner-api/pkg/config"
	"github.com/iels-id/learner-api/pkg/logger"
	corsmiddleware "github.com/iels-id/learner-api/pkg/middleware/cors"
	reqidmiddleware "github.com/iels-id/learner-api/pkg/middleware/requestid"
)

type routerDeps struct {
	verifier     middleware.TokenValidator
	metrics      *service.MetricsService
	health       *handler.MetricsHandler
	testAccess   *handler.TestAccessHandler
	certificates *handler.CertificateHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	tests := api.Group("/tests", middleware.JWT(deps.verifier))
	tests.POST("/access", deps.testAccess.VerifyAccess)
	tests.GET("/registrations/:id/attempts", deps.testAccess.ListAttempts)
	tests.POST("/registrations/:id/attempts", deps.testAccess.CreateAttempt)
	tests.POST("/attempts/:id/submit", deps.testAccess.SubmitScore)
	tests.POST("/attempts/:id/certificate", deps.certificates.Issue)
	tests.POST("/attempts/:id/certificate/pdf", deps.certificates.RenderPDF)

	certs := api.Group("/certificates")
	certs.GET("/verify/:code", deps.certificates.Verify)
	certs.GET("/download/:token", deps.certificates.Download)

	return r
}
