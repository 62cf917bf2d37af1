package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/davomat-bot/internal/service"
	appErrors "github.com/noah-isme/davomat-bot/pkg/errors"
	"github.com/noah-isme/davomat-bot/pkg/response"
)

// JWT protects gateway routes by requiring the transport bearer token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		if err := authService.ValidateGatewayToken(parts[1]); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}
