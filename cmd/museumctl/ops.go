package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"museum-ticketing-platform/internal/middleware"
	"museum-ticketing-platform/internal/models"
	"museum-ticketing-platform/internal/repositories"
	"museum-ticketing-platform/internal/services"

	"github.com/spf13/cobra"
)

// completion wires the shared payment completion path. Notifications go
// through an in-process dispatcher that the returned func drains.
func (e *env) completion(ctx context.Context) (*services.PaymentCompletion, func()) {
	db := e.db.DB
	metrics := services.NewMetrics()
	audit := services.NewAuditService(repositories.NewAuditLogRepository(db), e.logger)
	settings := services.NewSettingsService(repositories.NewSettingsRepository(db), audit, e.logger)

	storage := services.NewStorageFactory(e.cfg, e.logger).CreateStorageService(ctx)
	sender := services.NewNotificationSender(
		services.NewMailer(e.cfg.Resend, e.cfg.Email, e.logger),
		services.NewTicketAssets(storage, e.logger),
		metrics, e.logger)

	dispatcher := services.NewChannelDispatcher(sender, 1, 64, metrics, e.logger)
	dispatcher.Start()

	completion := services.NewPaymentCompletion(
		repositories.NewPaymentOrderRepository(db),
		repositories.NewBookingRepository(db),
		repositories.NewTicketRepository(db),
		repositories.NewTimeSlotRepository(db),
		repositories.NewCartRepository(db),
		settings, dispatcher, audit, metrics, e.logger)

	return completion, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := dispatcher.Stop(stopCtx); err != nil {
			e.logger.WithError(err).Warn("Some notifications were not sent")
		}
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sweepCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release every expired cart hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := e.db.DB
			audit := services.NewAuditService(repositories.NewAuditLogRepository(db), e.logger)
			cart := services.NewCartService(
				repositories.NewCartRepository(db),
				repositories.NewTimeSlotRepository(db),
				repositories.NewPricingRepository(db),
				services.NewSettingsService(repositories.NewSettingsRepository(db), audit, e.logger),
				services.NewMetrics(), e.logger)

			n, err := cart.SweepAllExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Released %d expired holds\n", n)
			return nil
		},
	}
}

func reconcileCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect and repair orders that need attention",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List orders flagged for reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, err := repositories.NewPaymentOrderRepository(e.db.DB).ListNeedingReconciliation(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Println("Nothing to reconcile")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GATEWAY ORDER\tSTATUS\tUSER\tAMOUNT\tFAILED ITEMS\tPAID AT")
			for _, o := range orders {
				paidAt := "-"
				if o.PaidAt != nil {
					paidAt = o.PaidAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					o.GatewayOrderID, o.Status, o.UserID, fmt.Sprintf("%.2f %s", o.AmountInRupees(), o.Currency), len(o.FailureDetails), paidAt)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 50, "maximum orders")

	var orderID string
	retry := &cobra.Command{
		Use:   "retry",
		Short: "Re-run reconciliation for one paid order",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := repositories.NewPaymentOrderRepository(e.db.DB).GetByGatewayOrderID(cmd.Context(), orderID)
			if err != nil {
				return err
			}
			if !order.IsPaid() {
				return fmt.Errorf("order %s is %s, not paid", orderID, order.Status)
			}

			completion, drain := e.completion(cmd.Context())
			defer drain()

			result, err := completion.Reconcile(cmd.Context(), order)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	retry.Flags().StringVar(&orderID, "order", "", "gateway order id")
	_ = retry.MarkFlagRequired("order")

	cmd.AddCommand(list, retry)
	return cmd
}

func ticketsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Ticket maintenance",
	}

	var orderID string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue missing tickets for a paid order",
		Long: `Creates a ticket for every booking of a paid order that has none.
Use this when automatic ticket generation is switched off in the settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			completion, drain := e.completion(cmd.Context())
			defer drain()

			result, err := completion.IssueTickets(cmd.Context(), orderID)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	issue.Flags().StringVar(&orderID, "order", "", "gateway order id")
	_ = issue.MarkFlagRequired("order")

	cmd.AddCommand(issue)
	return cmd
}

func webhooksCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Inspect recorded gateway webhooks",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent webhook events",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := repositories.NewWebhookEventRepository(e.db.DB).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECEIVED\tTYPE\tORDER\tPROCESSED\tERROR")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					ev.ReceivedAt.Format(time.RFC3339), ev.EventType, deref(ev.GatewayOrderID), ev.Processed, deref(ev.Error))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum events")

	cmd.AddCommand(list)
	return cmd
}

// tokenCmd mints bearer tokens for local testing against the API
func tokenCmd(e *env) *cobra.Command {
	var (
		userID string
		email  string
		admin  bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:         "token",
		Short:       "Issue a signed bearer token",
		Annotations: map[string]string{"db": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if !e.cfg.IsDevelopment() {
				return fmt.Errorf("tokens can only be minted in development, ENV is %q", e.cfg.Server.Env)
			}

			role := models.UserRoleVisitor
			if admin {
				role = models.UserRoleAdmin
			}

			token, err := middleware.NewAuthenticator(e.cfg.Auth, e.logger).Issue(models.Principal{
				UserID: userID,
				Email:  email,
				Role:   role,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "subject user id")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// storageCmd reports where ticket QR assets will be written
func storageCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:         "storage",
		Short:       "Check the ticket asset storage configuration",
		Annotations: map[string]string{"db": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := services.NewStorageFactory(e.cfg, e.logger).Info()
			fmt.Printf("R2 configured:  %v\n", info["r2_configured"])
			fmt.Printf("Bucket:         %s\n", info["bucket_name"])
			fmt.Printf("Fallback path:  %s\n", info["fallback_path"])

			if configured, _ := info["r2_configured"].(bool); !configured {
				fmt.Println("R2 credentials missing, assets go to the local fallback")
				return nil
			}

			r2, err := services.NewR2Service(cmd.Context(), e.cfg.R2, e.logger)
			if err != nil {
				return fmt.Errorf("R2 client: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := r2.HealthCheck(ctx); err != nil {
				return fmt.Errorf("R2 bucket not reachable: %w", err)
			}
			fmt.Println("R2 bucket reachable")
			return nil
		},
	}
}
