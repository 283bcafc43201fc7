package main

import (
	"github.com/spf13/cobra"

	"github.com/rowbase/rowbase/bootstrap"
	"github.com/rowbase/rowbase/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Rowbase server",
	Long: `Start the Rowbase server.

The server will:
  - Load configuration from rowbase.yaml (or --config)
  - Or load configuration from ROWBASE_* environment variables
  - Connect to Postgres and run migrations
  - Serve the schema and row REST API under /v1
  - Listen for row changes and fan them out over /v1/realtime

Environment variables (for Docker deployments):
  ROWBASE_DATABASE_URL   - Postgres connection string (required)
  ROWBASE_SERVER_PORT    - Server port (default: 8080)
  ROWBASE_API_KEY        - Service API key for the REST surface
  ROWBASE_JWT_SECRET     - HS256 secret for subscriber tokens
  ROWBASE_LOG_LEVEL      - Log level: debug, info, warn, error

Examples:
  rowbase serve
  rowbase serve --config /etc/rowbase/config.yaml

  # Docker (env vars only):
  ROWBASE_DATABASE_URL=postgres://localhost/rowbase rowbase serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	app, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	return app.Run()
}
