package api

import (
	"fmt"     // Error formatting
	"strconv" // String conversion
	"time"    // Date parsing

	"github.com/gin-gonic/gin" // Gin web framework

	"payment_broker/internal/domain" // Error taxonomy
)

// intQuery reads a non-negative integer query parameter
func intQuery(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v >= 0 {
		return v // Valid value
	}
	return fallback // Missing or invalid
}

// timeQuery reads a date bound as unix millis, RFC3339 or YYYY-MM-DD.
// A bare end date covers the whole day.
func timeQuery(c *gin.Context, key string, endOfDay bool) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil // Open bound
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms >= 0 {
		return ms, nil // Unix millis
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli(), nil // Full timestamp
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Millisecond) // Inclusive end of day
		}
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("%w: %s must be unix millis, RFC3339 or YYYY-MM-DD", domain.ErrValidation, key)
}

// rangeQuery reads the from/to pair
func rangeQuery(c *gin.Context) (int64, int64, error) {
	from, err := timeQuery(c, "from", false)
	if err != nil {
		return 0, 0, err
	}
	to, err := timeQuery(c, "to", true)
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}
