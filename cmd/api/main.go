package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Hope_Community/internal/app"
	"Hope_Community/internal/config"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hope",
	Short: "Hope community service",
	Long: `hope runs the community API: disease communities with stage/type sub-communities,
user profiles and search, threads, replies and guru Q&A.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		if logger, err = pkg.NewLogger(level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server with the reconciler and outbox relayer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations to all four stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := store.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer stores.Close()
		return stores.Migrate(logger)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute community member counts from membership rows once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		report, err := a.Reconciler.ReconcileOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d communities, fixed %d\n", report.Communities, report.Fixed)
		return nil
	},
}

var (
	guruIntro  string
	guruRevoke bool
)

var guruCmd = &cobra.Command{
	Use:   "guru <username>",
	Short: "Grant or revoke the guru flag for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		user, err := a.Users.SetGuru(cmd.Context(), args[0], !guruRevoke, guruIntro)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s (id=%d) is_guru=%t\n", user.Username, user.ID, user.IsGuru)
		return nil
	},
}

func runServe(ctx context.Context) error {
	a, err := app.New(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	guruCmd.Flags().StringVar(&guruIntro, "intro", "", "guru introduction shown on the guru page")
	guruCmd.Flags().BoolVar(&guruRevoke, "revoke", false, "remove the guru flag instead of granting it")

	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd, guruCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
