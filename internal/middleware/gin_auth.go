package middleware

import (
	"net/http"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/profile"

	"github.com/gin-gonic/gin"
)

// Gin adapts a net/http middleware to Gin, so the session middleware and
// the gate run unchanged in either stack.
func Gin(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		// the middleware answered (redirect) without calling next
		if c.Writer.Written() {
			c.Abort()
			return
		}
	}
}

func PrincipalFromGin(c *gin.Context) *auth.Principal {
	return PrincipalFromContext(c.Request.Context())
}

func ProfileFromGin(c *gin.Context) (*profile.Profile, bool) {
	return ProfileFromContext(c.Request.Context())
}
