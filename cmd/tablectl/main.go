// tablectl is the operations CLI: migrations, ad-hoc broadcasts, manual
// reminder passes and admin key generation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablemate/tablemate/internal/config"
	"github.com/tablemate/tablemate/internal/notification"
	"github.com/tablemate/tablemate/internal/push"
	"github.com/tablemate/tablemate/pkg/apikey"
	"github.com/tablemate/tablemate/pkg/database"
	"github.com/tablemate/tablemate/pkg/messaging"
	"github.com/tablemate/tablemate/pkg/observability"
)

func main() {
	root := &cobra.Command{
		Use:           "tablectl",
		Short:         "Operations CLI for the tablemate backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd(), broadcastCmd(), processDueCmd(), genkeyCmd(), tailEventsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func broadcastCmd() *cobra.Command {
	var (
		typ      string
		title    string
		message  string
		dinnerID string
	)
	cmd := &cobra.Command{
		Use:   "broadcast [user-id ...]",
		Short: "Send an ad-hoc notification to users, or to a whole dinner with --dinner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dinnerID == "" && len(args) == 0 {
				return fmt.Errorf("pass user IDs or --dinner")
			}
			logger := observability.NewLogger("tablectl")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			gateway := pushGateway(ctx, cfg, logger)
			svc := notification.NewService(notification.NewRepository(db), gateway, logger.Logger)

			if dinnerID != "" {
				created, err := svc.NotifyDinnerUsers(ctx, dinnerID,
					notification.Type(typ), title, message, "")
				if err != nil {
					return fmt.Errorf("sent %d before failing: %w", len(created), err)
				}
				fmt.Printf("sent to %d users on dinner %s\n", len(created), dinnerID)
				return nil
			}

			for _, userID := range args {
				n, err := svc.Create(ctx, notification.CreateParams{
					UserID:  userID,
					Type:    notification.Type(typ),
					Title:   title,
					Message: message,
				})
				if err != nil {
					return fmt.Errorf("user %s: %w", userID, err)
				}
				fmt.Printf("sent %s to %s\n", n.ID, userID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(notification.TypeDinnerUpdated), "notification type")
	cmd.Flags().StringVar(&title, "title", "", "notification title")
	cmd.Flags().StringVar(&message, "message", "", "notification message")
	cmd.Flags().StringVar(&dinnerID, "dinner", "", "notify everyone booked on this dinner")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("message")
	return cmd
}

func processDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-due",
		Short: "Run one reminder pass immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.NewLogger("tablectl")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			gateway := pushGateway(ctx, cfg, logger)
			svc := notification.NewService(notification.NewRepository(db), gateway, logger.Logger)

			count, err := svc.ProcessScheduled(ctx, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("processed %d before failing: %w", count, err)
			}
			fmt.Printf("processed %d due reminders\n", count)
			return nil
		},
	}
}

func genkeyCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate an admin API key and its stored hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AdminAPISecret == "" {
				return fmt.Errorf("ADMIN_API_SECRET must be set")
			}
			key, hash, err := apikey.GenerateKey(prefix, cfg.AdminAPISecret)
			if err != nil {
				return err
			}
			fmt.Printf("key:  %s\nhash: %s\n", key, hash)
			fmt.Println("store the hash in ADMIN_API_KEY_HASH; the key itself is shown once")
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "tm", "key prefix")
	return cmd
}

func tailEventsCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "tail-events",
		Short: "Follow the domain event stream (ctrl-c to stop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.NewLogger("tablectl")
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			reader := messaging.NewEventReader(cfg.KafkaBrokers, cfg.KafkaTopic, group, logger.Logger)
			defer reader.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			reader.Consume(ctx, func(key string, value []byte) error {
				fmt.Printf("%s\t%s\n", key, value)
				return nil
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "tablectl", "consumer group id")
	return cmd
}

func pushGateway(ctx context.Context, cfg *config.Config, logger *observability.Logger) push.Gateway {
	if cfg.SNSPlatformARN == "" {
		return push.Unavailable(logger.Logger)
	}
	gw, err := push.NewSNSGateway(ctx, cfg.SNSRegion, cfg.PushChannelID, logger.Logger)
	if err != nil {
		logger.Warn("push gateway unavailable, falling back to no-op", "error", err)
		return push.Unavailable(logger.Logger)
	}
	return gw
}
