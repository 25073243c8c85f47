package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hupe1980/decisionmesh/auth"
	"github.com/hupe1980/decisionmesh/logging"
)

const claimsKey = "decisionmesh.claims"

var errMissingToken = errors.New("missing or invalid token")

// requireAuth verifies the bearer token and stores its claims on the context.
func requireAuth(tokens *auth.Manager, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, errMissingToken)
			return
		}

		claims, err := tokens.Verify(token)
		if err != nil {
			logger.Debug("http.auth.rejected", "path", c.FullPath(), "error", err.Error())
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// mayActFor reports whether claims may act on behalf of agentID. Admins may
// act for any agent.
func mayActFor(claims *auth.Claims, agentID string) bool {
	return claims.Role == auth.RoleAdmin || claims.AgentID() == agentID
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	})
}

// requestLogger logs one line per request through the runtime logger.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}
