package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bonjohen/cedar-terrace-sub001/internal/middleware"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// actorFromContext resolves the acting user from JWT claims. Routes without
// auth fall back to the system actor.
func actorFromContext(c *gin.Context) string {
	claimsValue, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return models.SystemActor
	}
	claims, ok := claimsValue.(*models.JWTClaims)
	if !ok || claims.UserID == "" {
		return models.SystemActor
	}
	return claims.UserID
}
