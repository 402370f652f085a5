package api

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Exact money amounts
	"github.com/sirupsen/logrus"    // Logging library

	"payment_broker/internal/domain"  // Error taxonomy
	"payment_broker/internal/payment" // Lifecycle manager
)

// PaymentRequest represents a payment initiation request
type PaymentRequest struct {
	Amount   decimal.Decimal `json:"amount"`                      // Amount in major units, e.g. 50.000
	OrderID  string          `json:"orderId" binding:"required"`  // Merchant order id
	UserID   *uint           `json:"userId"`                      // Optional paying user
	Provider string          `json:"provider" binding:"required"` // clictopay or konnect
}

// InitiatePaymentHandler opens a payment with the chosen provider
func InitiatePaymentHandler(m *payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
			return
		}
		// Hand over to the lifecycle manager
		res, err := m.InitiatePayment(c.Request.Context(), payment.InitiateInput{
			UserID:   req.UserID,   // Paying user
			Amount:   req.Amount,   // Amount
			OrderID:  req.OrderID,  // Order correlation id
			Provider: req.Provider, // Gateway name
		})
		if err != nil {
			status := statusFor(err) // Map error kind to status
			if status != http.StatusBadRequest {
				status = http.StatusInternalServerError // Configuration and gateway failures are not the caller's input
			}
			c.JSON(status, gin.H{"success": false, "message": publicMessage(err, "Payment initiation failed")})
			return
		}
		// Return the hosted payment page
		c.JSON(http.StatusCreated, gin.H{
			"success":       true,                   // Operation succeeded
			"paymentUrl":    res.PaymentURL,         // Redirect the customer here
			"transactionId": res.Transaction.ID,     // Internal transaction id
			"status":        res.Transaction.Status, // Always pending
		})
	}
}

// PaymentStatusHandler resolves a payment by transaction id or order id, polling the provider while pending
func PaymentStatusHandler(m *payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("id") // Transaction id or order id
		tx, err := m.VerifyPayment(c.Request.Context(), key)
		if err != nil && tx == nil {
			// Nothing to report
			c.JSON(statusFor(err), gin.H{"success": false, "message": publicMessage(err, "Payment verification failed")})
			return
		}
		if err != nil {
			// Provider poll failed, report the stored state
			logrus.WithFields(logrus.Fields{
				"transaction_id": tx.ID,       // Transaction id
				"error":          err.Error(), // Poll failure
			}).Warn("Returning stored payment status")
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       tx.Status != domain.StatusFailed, // Failed payments are not a success
			"status":        tx.Status,                        // pending, completed or failed
			"transactionId": tx.ID,                            // Internal id
			"orderId":       tx.OrderID,                       // Merchant order id
		})
	}
}
