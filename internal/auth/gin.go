package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinIdentityKey is the gin context key holding the *Identity.
const GinIdentityKey = "keyward.identity"

// GinMiddleware returns a gin handler that requires permission. On failure
// the chain is aborted with the generic 401 body.
func (a *Authenticator) GinMiddleware(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := a.Authenticate(c.Request, permission)
		if err != nil {
			c.Header(HeaderWWWAuthenticate, `Bearer realm="api"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedBody())
			return
		}

		c.Request = c.Request.WithContext(ContextWithIdentity(c.Request.Context(), identity))
		c.Set(GinIdentityKey, identity)
		c.Next()
	}
}

// IdentityFromGin returns the identity stored by GinMiddleware.
func IdentityFromGin(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(GinIdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok && identity != nil
}
