package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"github.com/gin-gonic/gin" // Gin web framework

	"payment_broker/internal/utils" // JWT utility functions
)

// Context keys set by JWTAuthMiddleware
const (
	ContextUserID = "userID" // Authenticated user id
	ContextPhone  = "phone"  // Phone the OTP was verified for
	ContextRole   = "role"   // Role claim, replaced by the stored role behind the admin guard
)

// JWTAuthMiddleware accepts tokens issued after an OTP login and exposes their identity claims
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, tokenStr, ok := strings.Cut(c.GetHeader("Authorization"), " ") // Split "Bearer <token>"
		if !ok || !strings.EqualFold(scheme, "Bearer") || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		claims, err := utils.ParseJWT(strings.TrimSpace(tokenStr), secret) // Signature, algorithm and expiry
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if claims.UserID == 0 || claims.Phone == "" {
			// Every login token names a user and a verified phone
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(ContextUserID, claims.UserID) // Store user id in context
		c.Set(ContextPhone, claims.Phone)   // Store verified phone in context
		c.Set(ContextRole, claims.Role)     // Store role claim in context
		c.Next()                            // Proceed to the next handler
	}
}
