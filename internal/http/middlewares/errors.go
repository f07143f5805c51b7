package middlewares

import "github.com/gin-gonic/gin"

// abortWithError writes the same envelope as handlers.RespondError.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"requestId": c.GetString(CtxRequestID),
		},
	})
}
