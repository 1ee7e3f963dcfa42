package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/iels-id/learner-api/internal/middleware"
	"github.com/iels-id/learner-api/internal/models"
	appErrors "github.com/iels-id/learner-api/pkg/errors"
	"github.com/iels-id/learner-api/pkg/response"
)

// requireLearner returns the authenticated learner's claims, or writes 401 and
// reports false when the request carries no usable identity.
func requireLearner(c *gin.Context) (*models.JWTClaims, bool) {
	claims, _ := c.Get(middleware.ContextUserKey)
	learner, ok := claims.(*models.JWTClaims)
	if !ok || learner == nil || learner.Email == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return learner, true
}
