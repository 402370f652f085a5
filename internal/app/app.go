// Package app wires configuration into the services shared by the HTTP
// server and the reconciliation CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"payment_broker/internal/config"
	"payment_broker/internal/db"
	"payment_broker/internal/gateway"
	"payment_broker/internal/otp"
	"payment_broker/internal/payment"
	"payment_broker/internal/store"
	"payment_broker/internal/wallet"
	"payment_broker/internal/webhook"
)

// App holds the wired services.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Store    *store.TransactionStore
	Gateways *gateway.Registry
	Payments *payment.Manager
	Wallet   *wallet.Service
	Webhooks *webhook.Ingestor
	OTP      *otp.Service
}

type options struct {
	optionalRedis bool
}

// Option tunes New.
type Option func(*options)

// OptionalRedis keeps going without Redis when it cannot be reached.
// Only caching degrades; OTP requests will fail.
func OptionalRedis() Option {
	return func(o *options) { o.optionalRedis = true }
}

// New connects to the database and Redis and builds every service.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	gdb, err := db.Open(cfg.DBDriver, db.DSN(cfg))
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		if !o.optionalRedis {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logrus.WithField("error", err.Error()).Warn("Redis unreachable, running without cache")
		rdb.Close()
		rdb = nil
	}

	client := &http.Client{Timeout: cfg.Payment.GatewayTimeout}
	registry := gateway.NewRegistry(
		gateway.NewClicToPay(gateway.ClicToPayConfig{
			BaseURL:  cfg.ClicToPay.BaseURL,
			Username: cfg.ClicToPay.Username,
			Password: cfg.ClicToPay.Password,
			Timeout:  cfg.Payment.GatewayTimeout,
		}, client),
		gateway.NewKonnect(gateway.KonnectConfig{
			BaseURL:    cfg.Konnect.BaseURL,
			APIKey:     cfg.Konnect.APIKey,
			ReceiverID: cfg.Konnect.ReceiverID,
			Timeout:    cfg.Payment.GatewayTimeout,
		}, client),
	)

	s := store.NewTransactionStore(gdb)
	walletSvc := wallet.NewService(s, registry, rdb, wallet.Config{
		Currency:       cfg.Payment.Currency,
		GatewayTimeout: cfg.Payment.GatewayTimeout,
	})
	manager := payment.NewManager(s, registry, walletSvc, payment.Config{
		Currency:       cfg.Payment.Currency,
		ReturnURL:      cfg.Payment.ReturnURL,
		FailureURL:     cfg.Payment.FailureURL,
		GatewayTimeout: cfg.Payment.GatewayTimeout,
	})
	verifiers := map[string]webhook.Verifier{
		gateway.ClicToPayName: {Header: webhook.HeaderClicToPay, Secret: cfg.ClicToPay.WebhookSecret},
		gateway.KonnectName:   {Header: webhook.HeaderKonnect, Secret: cfg.Konnect.WebhookSecret},
	}

	return &App{
		Config:   cfg,
		DB:       gdb,
		Redis:    rdb,
		Store:    s,
		Gateways: registry,
		Payments: manager,
		Wallet:   walletSvc,
		Webhooks: webhook.NewIngestor(registry, verifiers, manager),
		OTP:      otp.NewService(rdb, otpSender(cfg), cfg.OTP.TTL),
	}, nil
}

// otpSender picks SMS then WhatsApp, or the log sender when neither is configured outside production.
func otpSender(cfg *config.Config) otp.Sender {
	var senders []otp.Sender
	if cfg.OTP.SMSURL != "" {
		senders = append(senders, otp.NewHTTPSender("sms", cfg.OTP.SMSURL, cfg.OTP.SenderAPIKey, 10*time.Second))
	}
	if cfg.OTP.WhatsAppURL != "" {
		senders = append(senders, otp.NewHTTPSender("whatsapp", cfg.OTP.WhatsAppURL, cfg.OTP.SenderAPIKey, 10*time.Second))
	}
	if len(senders) == 0 && !cfg.IsProd {
		return otp.LogSender{}
	}
	return otp.FallbackSender{Senders: senders}
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// Describe summarises the wiring for the startup log.
func (a *App) Describe() logrus.Fields {
	return logrus.Fields{
		"db_driver": a.Config.DBDriver,
		"gateways":  strings.Join(a.Gateways.Names(), ","),
		"cache":     a.Redis != nil,
		"currency":  a.Config.Payment.Currency,
	}
}
