package middleware

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library

	"payment_broker/internal/domain" // Importing domain models
)

// AdminOnlyMiddleware re-reads the caller's row on each request. The stored role
// wins over the token's role claim, so promotion and demotion apply before the
// token expires, and a token whose phone no longer matches the row is refused.
func AdminOnlyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(ContextUserID) // Set by JWTAuthMiddleware
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		if user.Phone != c.GetString(ContextPhone) {
			// Token was issued for a different account
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if claimed := c.GetString(ContextRole); claimed != user.Role {
			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,   // Caller
				"claimed": claimed,   // Role in the token
				"current": user.Role, // Role in the database
			}).Info("Role changed since token was issued")
		}
		if user.Role != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Set(ContextRole, user.Role) // Handlers see the current role
		c.Next()                      // Proceed to the next handler
	}
}
