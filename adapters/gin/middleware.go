// Package authgin gates gin routes on JWT rule evaluation. Rules are tried
// in order; the first one that verifies the request wins and its claims are
// stored in the gin context for handlers.
package authgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/jwtgate/claims"
	"github.com/open-rails/jwtgate/engine"
)

const claimsKey = "auth.claims"

// ClaimsFromGin returns the verified claim set stored by the middleware.
func ClaimsFromGin(c *gin.Context) (claims.Set, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	set, ok := v.(claims.Set)
	return set, ok
}

// RequireJWT aborts with 401 unless one of the evaluators verifies the
// request. A request carrying no token at all is also rejected.
func RequireJWT(evaluators ...*engine.Evaluator) gin.HandlerFunc {
	return authenticate(evaluators, true)
}

// OptionalJWT verifies when a token is present but lets anonymous requests
// through. A present-but-invalid token is still rejected: a client that sent
// credentials deserves to know they failed.
func OptionalJWT(evaluators ...*engine.Evaluator) gin.HandlerFunc {
	return authenticate(evaluators, false)
}

func authenticate(evaluators []*engine.Evaluator, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rejected *engine.Result
		for _, ev := range evaluators {
			res := ev.Evaluate(c.Request.Context(), c.Request)
			switch res.Status {
			case engine.StatusVerified:
				c.Set(claimsKey, res.Claims)
				c.Next()
				return
			case engine.StatusRejected:
				r := res
				rejected = &r
			case engine.StatusNoToken:
				// Fall through to the next rule.
			}
		}

		if rejected != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "invalid token",
				"reason": rejected.ReasonKind(),
			})
			return
		}
		if required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		c.Next()
	}
}
