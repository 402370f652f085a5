package api

import (
	"net/http" // HTTP status codes
	"time"     // Token lifetime

	"github.com/gin-gonic/gin"                                // Gin web framework
	"github.com/prometheus/client_golang/prometheus/promhttp" // Metrics exposition
	"github.com/redis/go-redis/v9"                            // Redis client
	"gorm.io/gorm"                                            // GORM ORM library

	"payment_broker/internal/middleware" // Auth, admin and metrics middleware
	"payment_broker/internal/otp"        // Verification codes
	"payment_broker/internal/payment"    // Lifecycle manager
	"payment_broker/internal/store"      // Transaction store
	"payment_broker/internal/wallet"     // Wallet reconciliation
	"payment_broker/internal/webhook"    // Webhook ingestion
)

// Deps are the services the HTTP layer exposes
type Deps struct {
	DB        *gorm.DB                // Users and health
	Redis     *redis.Client           // Admin cache and health, may be nil
	Store     *store.TransactionStore // Reporting
	Payments  *payment.Manager        // Payment lifecycle
	Webhooks  *webhook.Ingestor       // Provider callbacks
	Wallet    *wallet.Service         // Application wallet
	OTP       *otp.Service            // Phone verification
	JWTSecret string                  // Token signing key
	JWTTTL    time.Duration           // Token lifetime
}

// NewRouter builds the gin engine with every route registered
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()                                                                       // Gin router instance
	r.Use(gin.Recovery(), middleware.LoggerMiddleware(), middleware.MetricsMiddleware()) // Global middleware

	r.GET("/health", HealthHandler(d.DB, d.Redis))   // Liveness endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler())) // Prometheus scrape endpoint

	// Auth routes
	r.POST("/auth/otp", RequestOTPHandler(d.OTP))                                    // Send a code
	r.POST("/auth/otp/verify", VerifyOTPHandler(d.DB, d.Redis, d.OTP, d.JWTSecret, d.JWTTTL)) // Exchange a code for a token

	// Payment routes
	r.POST("/payments", InitiatePaymentHandler(d.Payments))         // Initiation endpoint
	r.GET("/payments/:id/status", PaymentStatusHandler(d.Payments)) // Status poll endpoint
	r.POST("/webhooks/:provider", WebhookHandler(d.Webhooks))       // Provider callbacks, authenticated by signature

	// Wallet routes (protected, admin only)
	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.DB))
	walletGroup.GET("/balance", WalletBalanceHandler(d.Wallet))               // Balance endpoint
	walletGroup.GET("/history", WalletHistoryHandler(d.Wallet))               // History endpoint
	walletGroup.GET("/statistics", WalletStatisticsHandler(d.Wallet))         // Statistics endpoint
	walletGroup.POST("/credit/:transactionId", WalletCreditHandler(d.Wallet)) // Manual credit endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.DB))
	adminGroup.GET("/users", ListUsersHandler(d.DB, d.Redis))         // List users endpoint
	adminGroup.GET("/transactions", ListTransactionsHandler(d.Store)) // List transactions endpoint

	return r
}

// HealthHandler reports whether the database and Redis answer
func HealthHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sqlDB, err := db.DB() // Underlying pool
		if err == nil {
			err = sqlDB.PingContext(ctx) // Database reachable
		}
		if err == nil && rdb != nil {
			err = rdb.Ping(ctx).Err() // Redis reachable
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
