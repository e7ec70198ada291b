package bookfile

import (
	"net/http"

	"bookgate/pkg/auth"

	"github.com/gin-gonic/gin"
)

// identityMiddleware attaches the caller's identity when a bearer token is
// present. Requests without one continue anonymously; a token that fails
// verification is rejected.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}
		if raw == "" {
			c.Next()
			return
		}

		identity, err := s.verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.Debug("Token rejected: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
		c.Set("user", identity.UserID)
		c.Next()
	}
}

func userFromContext(c *gin.Context) string {
	return auth.UserID(c.Request.Context())
}
