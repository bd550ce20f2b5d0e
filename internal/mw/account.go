package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	AccountHeader = "X-Account-ID"
	accountKey    = "account_id"
)

// Account requires the account header set by the upstream gateway and stores
// it on the context.
func Account() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(AccountHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + AccountHeader})
			return
		}
		c.Set(accountKey, id)
		c.Next()
	}
}

// AccountID returns the account stored by Account, or "".
func AccountID(c *gin.Context) string {
	return c.GetString(accountKey)
}
