package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For timeouts

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort         string        // Application port
	IsProd          bool          // Is production environment
	LogLevel        string        // Logrus level name
	DBDriver        string        // mysql, postgres or sqlite
	DBUser          string        // Database user
	DBPassword      string        // Database password
	DBHost          string        // Database host
	DBPort          string        // Database port
	DBName          string        // Database name (file path for sqlite)
	JWTSecret       string        // JWT secret key
	JWTTTL          time.Duration // JWT lifetime
	RedisAddr       string        // Redis server address
	RedisPass       string        // Redis password
	RedisDB         int           // Redis database number
	ShutdownTimeout time.Duration // Graceful shutdown budget
	Payment         PaymentConfig // Payment lifecycle settings
	ClicToPay       ClicToPayConfig
	Konnect         KonnectConfig
	OTP             OTPConfig
}

// PaymentConfig holds settings shared by every gateway
type PaymentConfig struct {
	Currency       string        // Ledger currency
	ReturnURL      string        // Where the provider sends the customer on success
	FailureURL     string        // Where the provider sends the customer on failure
	GatewayTimeout time.Duration // Bound on every outbound gateway call
}

// ClicToPayConfig configures the card gateway
type ClicToPayConfig struct {
	BaseURL       string // API base, e.g. https://test.clictopay.com/payment/rest
	Username      string // Merchant API user
	Password      string // Merchant API password
	WebhookSecret string // HMAC secret for callbacks
}

// KonnectConfig configures the wallet gateway
type KonnectConfig struct {
	BaseURL       string // API base, e.g. https://api.preprod.konnect.network/api/v2
	APIKey        string // x-api-key
	ReceiverID    string // Merchant wallet id
	WebhookSecret string // HMAC secret for callbacks
}

// OTPConfig configures verification codes
type OTPConfig struct {
	TTL          time.Duration // Code lifetime
	SMSURL       string        // SMS provider endpoint
	WhatsAppURL  string        // WhatsApp provider endpoint
	SenderAPIKey string        // Bearer token for both senders
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:         valueOrDefault("APP_PORT", "8080"),                    // Application port
		IsProd:          os.Getenv("IS_PROD") == "true",                        // Is production environment
		LogLevel:        valueOrDefault("LOG_LEVEL", "info"),                   // Log level
		DBDriver:        valueOrDefault("DB_DRIVER", "mysql"),                  // Database driver
		DBUser:          os.Getenv("DB_USER"),                                  // Database user
		DBPassword:      os.Getenv("DB_PASSWORD"),                              // Database password
		DBHost:          os.Getenv("DB_HOST"),                                  // Database host
		DBPort:          os.Getenv("DB_PORT"),                                  // Database port
		DBName:          os.Getenv("DB_NAME"),                                  // Database name
		JWTSecret:       os.Getenv("JWT_SECRET"),                               // JWT secret key
		JWTTTL:          durationOrDefault("JWT_TTL", 24*time.Hour),            // JWT lifetime
		RedisAddr:       valueOrDefault("REDIS_ADDR", "localhost:6379"),        // Redis server address
		RedisPass:       os.Getenv("REDIS_PASS"),                               // Redis password
		RedisDB:         redisDB,                                               // Redis database number
		ShutdownTimeout: durationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second), // Graceful shutdown budget
		Payment: PaymentConfig{
			Currency:       valueOrDefault("PAYMENT_CURRENCY", "TND"),            // Ledger currency
			ReturnURL:      os.Getenv("PAYMENT_RETURN_URL"),                      // Success redirect
			FailureURL:     os.Getenv("PAYMENT_FAILURE_URL"),                     // Failure redirect
			GatewayTimeout: durationOrDefault("GATEWAY_TIMEOUT", 20*time.Second), // Outbound call bound
		},
		ClicToPay: ClicToPayConfig{
			BaseURL:       os.Getenv("CLICTOPAY_BASE_URL"),       // Card gateway base URL
			Username:      os.Getenv("CLICTOPAY_USERNAME"),       // Merchant user
			Password:      os.Getenv("CLICTOPAY_PASSWORD"),       // Merchant password
			WebhookSecret: os.Getenv("CLICTOPAY_WEBHOOK_SECRET"), // Callback secret
		},
		Konnect: KonnectConfig{
			BaseURL:       os.Getenv("KONNECT_BASE_URL"),       // Wallet gateway base URL
			APIKey:        os.Getenv("KONNECT_API_KEY"),        // API key
			ReceiverID:    os.Getenv("KONNECT_RECEIVER_ID"),    // Merchant wallet id
			WebhookSecret: os.Getenv("KONNECT_WEBHOOK_SECRET"), // Callback secret
		},
		OTP: OTPConfig{
			TTL:          durationOrDefault("OTP_TTL", 300*time.Second), // Code lifetime
			SMSURL:       os.Getenv("OTP_SMS_URL"),                      // SMS endpoint
			WhatsAppURL:  os.Getenv("OTP_WHATSAPP_URL"),                 // WhatsApp endpoint
			SenderAPIKey: os.Getenv("OTP_SENDER_API_KEY"),               // Sender token
		},
	}
}

// Secrets lists every configured credential so logs can redact them
func (c *Config) Secrets() []string {
	all := []string{
		c.DBPassword,
		c.JWTSecret,
		c.RedisPass,
		c.ClicToPay.Password,
		c.ClicToPay.WebhookSecret,
		c.Konnect.APIKey,
		c.Konnect.WebhookSecret,
		c.OTP.SenderAPIKey,
	}
	secrets := make([]string, 0, len(all))
	for _, s := range all {
		if s != "" {
			secrets = append(secrets, s) // Skip unset values
		}
	}
	return secrets
}

// valueOrDefault returns the env value or the fallback when unset
func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationOrDefault parses a Go duration, falling back on absence or error
func durationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
