package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/campuskit/shibgate/internal/api"
	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/pkg/config"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authentication gateway",
	Long: `Run the HTTP server that authenticates requests from trusted proxy
headers and serves the login/logout endpoints.

Examples:
  # Run with the default config location
  shibgate serve

  # Run with a custom config
  shibgate serve --config /etc/shibgate/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if err := logger.Init(cfg.Logging); err != nil {
			return err
		}

		st, err := store.New(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return api.NewServer(cfg, st).Start(ctx)
	},
}
