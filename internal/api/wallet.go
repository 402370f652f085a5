package api

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library

	"payment_broker/internal/wallet" // Wallet reconciliation service
)

// WalletBalanceHandler returns the application wallet balance, re-aggregated on each call
func WalletBalanceHandler(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := svc.Balance(c.Request.Context()) // Sum completed credits
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Failed to compute wallet balance")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch balance"})
			return
		}
		c.JSON(http.StatusOK, bal) // Return the balance
	}
}

// WalletHistoryHandler pages through wallet credits
func WalletHistoryHandler(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := rangeQuery(c) // Optional date range
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		page, err := svc.History(c.Request.Context(), wallet.HistoryQuery{
			Limit: intQuery(c, "limit", 20), // Page size
			Skip:  intQuery(c, "skip", 0),   // Offset
			From:  from,                     // Range start
			To:    to,                       // Range end
		})
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Failed to fetch wallet history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
			return
		}
		c.JSON(http.StatusOK, page) // Return the page
	}
}

// WalletStatisticsHandler summarises wallet credits over an optional range
func WalletStatisticsHandler(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := rangeQuery(c) // Optional date range
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		stats, err := svc.Statistics(c.Request.Context(), from, to)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": publicMessage(err, "Failed to compute statistics")})
			return
		}
		c.JSON(http.StatusOK, stats) // Return the statistics
	}
}

// WalletCreditHandler credits the application wallet for one completed card payment
func WalletCreditHandler(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceID := c.Param("transactionId") // Source payment
		credit, err := svc.CreditApplicationWallet(c.Request.Context(), sourceID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"source_transaction_id": sourceID,    // Source payment
				"error":                 err.Error(), // Failure reason
			}).Warn("Manual wallet credit refused")
			c.JSON(statusFor(err), gin.H{"success": false, "message": publicMessage(err, "Wallet credit failed")})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "credit": credit}) // Existing or new credit
	}
}
