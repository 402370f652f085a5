// Package otp issues and checks short-lived phone verification codes kept
// in Redis as bcrypt hashes.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"payment_broker/internal/domain"
)

const keyPrefix = "otp:"

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// ErrUnavailable is returned when no Redis client is configured.
var ErrUnavailable = errors.New("otp store unavailable")

// Service issues and verifies codes.
type Service struct {
	rdb    *redis.Client
	sender Sender
	ttl    time.Duration
	cost   int
}

// Option tunes a Service.
type Option func(*Service)

// WithBcryptCost overrides the hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService builds an OTP service. ttl defaults to five minutes.
func NewService(rdb *redis.Client, sender Sender, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	s := &Service{rdb: rdb, sender: sender, ttl: ttl, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizePhone strips spaces and validates the number.
func NormalizePhone(phone string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	if !phonePattern.MatchString(p) {
		return "", fmt.Errorf("%w: invalid phone number", domain.ErrValidation)
	}
	return p, nil
}

// Request generates a 4-digit code, stores its hash and sends it.
func (s *Service) Request(ctx context.Context, phone string) (string, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	if s.rdb == nil {
		return "", ErrUnavailable
	}
	code, err := newCode()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}
	key := keyPrefix + phone + ":" + uuid.NewString()
	if err := s.rdb.Set(ctx, key, hash, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}

	channel, err := s.sender.Send(ctx, phone, code)
	if err != nil {
		_ = s.rdb.Del(ctx, key).Err() // undeliverable code
		return "", fmt.Errorf("send otp: %w", err)
	}
	logrus.WithFields(logrus.Fields{"phone": phone, "channel": channel}).Info("OTP sent")
	return channel, nil
}

// Verify reports whether code matches a live code for phone. A match
// consumes every code issued to that phone; a mismatch consumes nothing.
func (s *Service) Verify(ctx context.Context, phone, code string) (bool, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return false, err
	}
	if s.rdb == nil {
		return false, ErrUnavailable
	}
	keys, err := s.keys(ctx, phone)
	if err != nil {
		return false, err
	}
	matched := false
	for _, key := range keys {
		hash, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired meanwhile
		}
		if err != nil {
			return false, fmt.Errorf("read otp: %w", err)
		}
		if bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil {
			matched = true
			break
		}
	}
	if !matched {
		logrus.WithField("phone", phone).Warn("OTP verification failed")
		return false, nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return false, fmt.Errorf("delete otp: %w", err)
	}
	return true, nil
}

func (s *Service) keys(ctx context.Context, phone string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, keyPrefix+phone+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan otp: %w", err)
	}
	return keys, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
