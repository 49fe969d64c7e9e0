package middleware

import "github.com/gin-gonic/gin"

// Secure sets response headers for a JSON API that returns integration settings.
// Responses are never cached since they can reveal which credentials a store holds.
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
