package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"time"     // Token lifetime

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library

	"payment_broker/internal/domain" // Importing domain models
	"payment_broker/internal/otp"    // Verification codes
	"payment_broker/internal/utils"  // Utility functions
)

// OTPRequest asks for a verification code
type OTPRequest struct {
	Phone string `json:"phone" binding:"required"` // Phone number in international format
}

// OTPVerifyRequest submits a verification code
type OTPVerifyRequest struct {
	Phone string `json:"phone" binding:"required"` // Phone number the code was sent to
	Code  string `json:"code" binding:"required"`  // 4-digit code
}

// RequestOTPHandler sends a verification code to a phone number
func RequestOTPHandler(svc *otp.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OTPRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
			return
		}
		channel, err := svc.Request(c.Request.Context(), req.Phone) // Generate, store and send
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid phone number"})
			return
		}
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Failed to send OTP")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to send code"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "channel": channel}) // Code sent
	}
}

// VerifyOTPHandler checks a code and returns a JWT for the phone's user, creating it on first login
func VerifyOTPHandler(db *gorm.DB, rdb *redis.Client, svc *otp.Service, jwtSecret string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OTPVerifyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
			return
		}
		ok, err := svc.Verify(c.Request.Context(), req.Phone, req.Code) // Compare against live codes
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid phone number"})
			return
		}
		if err != nil {
			logrus.WithField("error", err.Error()).Error("OTP verification failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Verification failed"})
			return
		}
		if !ok {
			// Wrong or expired code
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid or expired code"})
			return
		}
		phone, _ := otp.NormalizePhone(req.Phone) // Already validated by Verify
		var user domain.User                      // Find or create the user for this phone
		res := db.WithContext(c.Request.Context()).Where(domain.User{Phone: phone}).FirstOrCreate(&user)
		if res.Error != nil {
			logrus.WithField("error", res.Error.Error()).Error("Failed to load user")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Verification failed"})
			return
		}
		if res.RowsAffected == 1 {
			// New user, drop cached admin listings
			if err := utils.DeleteCacheByPattern(c.Request.Context(), rdb, usersCachePrefix+"*"); err != nil {
				logrus.WithField("error", err.Error()).Warn("Failed to invalidate users cache")
			}
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(user.ID, user.Phone, user.Role, jwtSecret, ttl)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "token": token}) // Return the token
	}
}
