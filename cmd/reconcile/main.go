// Command reconcile is the operator tool for the wallet and stale payments.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"payment_broker/internal/app"
	"payment_broker/internal/config"
	"payment_broker/internal/domain"
	"payment_broker/internal/logging"
	"payment_broker/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "reconcile",
		Short:        "Reconcile payments and the application wallet",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(verifyPendingCmd())
	rootCmd.AddCommand(balanceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads configuration, wires the services and runs fn until done or interrupted.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.LoadConfig()
	logging.Setup(cfg.LogLevel, cfg.IsProd, cfg.Secrets()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.OptionalRedis())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Credit the wallet for completed card payments that have no credit yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Wallet.Sweep(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}

	cmd.Flags().IntP("limit", "n", 0, "Maximum payments to scan (0 = all)")

	return cmd
}

func verifyPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-pending",
		Short: "Poll providers for payments stuck in pending",
		Long: `Ask the provider for the status of every pending payment older than
--older-than and apply the answer. Payments whose provider call fails stay
pending and are reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(func(ctx context.Context, a *app.App) error {
				cutoff := time.Now().Add(-olderThan).UnixMilli()
				pending, _, err := a.Store.Find(ctx, store.Filter{
					Kind:   domain.KindPayment,
					Status: domain.StatusPending,
					To:     cutoff,
				}, "created_at asc", limit, 0)
				if err != nil {
					return err
				}

				summary := map[string]int{"checked": 0, "completed": 0, "failed": 0, "pending": 0, "errors": 0}
				for _, tx := range pending {
					summary["checked"]++
					got, err := a.Payments.VerifyPayment(ctx, tx.ID)
					if err != nil {
						summary["errors"]++
						logrus.WithFields(logrus.Fields{"transaction_id": tx.ID, "error": err.Error()}).Warn("Verification failed")
						continue
					}
					summary[string(got.Status)]++
				}
				return printJSON(summary)
			})
		},
	}

	cmd.Flags().Duration("older-than", 15*time.Minute, "Only payments created before now minus this duration")
	cmd.Flags().IntP("limit", "n", 100, "Maximum payments to verify")

	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the application wallet balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				bal, err := a.Wallet.Balance(ctx)
				if err != nil {
					return err
				}
				return printJSON(bal)
			})
		},
	}
}
