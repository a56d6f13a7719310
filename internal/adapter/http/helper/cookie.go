package helper

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookie    = "authorization"
	SessionCookieTTL = 6 * time.Hour
)

// SetSessionCookie stores the sealed session token. The cookie is sent cross
// site, which requires SameSite=None together with Secure.
func SetSessionCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(SessionCookie, value, int(SessionCookieTTL.Seconds()), "/", "", true, true)
}

func ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", true, true)
}

// SessionValue returns the raw cookie value, or "" when absent.
func SessionValue(c *gin.Context) string {
	value, err := c.Cookie(SessionCookie)

	if err != nil {
		return ""
	}

	return value
}
