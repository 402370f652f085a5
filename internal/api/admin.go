package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library

	"payment_broker/internal/domain" // Importing domain models
	"payment_broker/internal/store"  // Transaction store
	"payment_broker/internal/utils"  // Utility functions
)

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID        uint   `json:"id"`         // User ID
	Phone     string `json:"phone"`      // Verified phone
	Role      string `json:"role"`       // User role
	CreatedAt int64  `json:"created_at"` // Creation time in milliseconds
}

// pagination reads page/page_size the same way for every admin listing
func pagination(c *gin.Context) (int, int) {
	page := 1      // Default page number
	pageSize := 20 // Default page size
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v // Set page if valid
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= 100 {
		pageSize = v // Set page size
	}
	return page, pageSize
}

// usersCachePrefix namespaces cached user listing pages
const usersCachePrefix = "admin:users:"

// ListUsersHandler returns users verified through OTP
func ListUsersHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Use background context for Redis
		page, pageSize := pagination(c)
		// Create a cache key based on pagination parameters
		cacheKey := usersCachePrefix + "page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		// Try to get cached response
		var cached struct {
			Users      []UserAdminResponse `json:"users"`       // List of users
			Page       int                 `json:"page"`        // Current page
			PageSize   int                 `json:"page_size"`   // Page size
			Total      int64               `json:"total"`       // Total number of users
			TotalPages int                 `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Users,      // List of users
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of users
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		offset := (page - 1) * pageSize // Calculate offset for pagination
		var total int64                 // Total user count
		if err := db.Model(&domain.User{}).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"}) // Return on error
			return
		}
		var users []domain.User // Slice to hold users
		if err := db.Order("id").Offset(offset).Limit(pageSize).Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"}) // Return on error
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize // Calculate total pages
		resp := make([]UserAdminResponse, len(users))
		// Map users to response format
		for i, u := range users {
			resp[i] = UserAdminResponse{
				ID:        u.ID,        // User ID
				Phone:     u.Phone,     // Phone
				Role:      u.Role,      // User role
				CreatedAt: u.CreatedAt, // Created at
			}
		}
		respData := gin.H{
			"users":       resp,       // List of users
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total number of users
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, 60*time.Second)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}

// ListTransactionsHandler returns transactions filtered by user, kind, status, provider, order or date.
// Statuses move quickly, so this listing is never cached.
func ListTransactionsHandler(s *store.TransactionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pagination(c)
		from, to, err := rangeQuery(c) // Optional date range
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f := store.Filter{
			Kind:     domain.Kind(c.Query("kind")),     // payment, wallet_credit, transfer
			Status:   domain.Status(c.Query("status")), // pending, completed, failed
			Provider: c.Query("provider"),              // Gateway name
			OrderID:  c.Query("order_id"),              // Merchant order id
			From:     from,                             // Range start
			To:       to,                               // Range end
		}
		if uid := c.Query("user_id"); uid != "" {
			v, err := strconv.ParseUint(uid, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
				return
			}
			id := uint(v)
			f.UserID = &id // Filter by owner
		}
		txs, total, err := s.Find(c.Request.Context(), f, c.DefaultQuery("sort", "created_at desc"), pageSize, (page-1)*pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": txs,                                    // List of transactions
			"page":         page,                                   // Current page
			"page_size":    pageSize,                               // Page size
			"total":        total,                                  // Total number of transactions
			"total_pages":  (int(total) + pageSize - 1) / pageSize, // Total pages
		})
	}
}
