package api

import (
	"errors"   // Error matching
	"io"       // Raw body
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library

	"payment_broker/internal/domain"  // Error taxonomy
	"payment_broker/internal/webhook" // Signature verification and ingestion
)

const maxWebhookBody = 1 << 20 // Providers send small JSON documents

// WebhookHandler authenticates and applies a provider notification
func WebhookHandler(ing *webhook.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider") // Provider name from the path
		// Read the exact bytes the provider signed
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"received": false})
			return
		}
		_, err = ing.Ingest(c.Request.Context(), provider, c.Request.Header, body)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"received": true}) // Applied or already terminal
		case errors.Is(err, domain.ErrAuthentication):
			c.JSON(http.StatusUnauthorized, gin.H{"received": false}) // No detail for forgers
		case errors.Is(err, domain.ErrUnknownTransaction), errors.Is(err, webhook.ErrUnknownProvider):
			logrus.WithFields(logrus.Fields{"provider": provider, "error": err.Error()}).Warn("Webhook for unknown target")
			c.JSON(http.StatusNotFound, gin.H{"received": false})
		case errors.Is(err, domain.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"received": false})
		default:
			logrus.WithFields(logrus.Fields{"provider": provider, "error": err.Error()}).Error("Webhook processing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"received": false}) // Provider will redeliver
		}
	}
}
