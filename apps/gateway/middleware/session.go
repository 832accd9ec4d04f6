package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookie = "basket_session"
	KeySessionID  = "sessionId"
)

// BasketSession makes sure every request carries an anonymous session id,
// issuing a cookie the first time a client is seen.
func BasketSession(maxAge int, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(sid) != nil {
			sid = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, sid, maxAge, "/", "", secure, true)
		}
		c.Set(KeySessionID, sid)
		c.Next()
	}
}

// SessionID returns the id set by BasketSession.
func SessionID(c *gin.Context) string {
	return c.GetString(KeySessionID)
}
