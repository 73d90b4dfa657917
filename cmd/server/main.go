/*
main.go - Application entry point

PURPOSE:
  Loads .env and configuration, initializes logging, then hands over to the
  cobra command tree (commands.go).

COMMANDS:
  serve               HTTP API (default when no command is given)
  migrate             Create / upgrade the schema and seed counters
  recompute-balances  Re-sum every account's movements into its balance
  report              Print the dashboard summary as JSON

ENVIRONMENT:
  PORT, DB_DRIVER (sqlite|postgres), DB_PATH, DATABASE_URL, DB_DEBUG,
  REPORT_TIMEZONE, REPORT_TOP_LIMIT, BALANCE_CHECK_MINUTES, CORS_ORIGINS,
  SERVER_READ_TIMEOUT, SERVER_WRITE_TIMEOUT,
  LOG_LEVEL, LOG_FORMAT, LOG_TIME_FORMAT, LOG_OUTPUT

EXAMPLES:
  ./server serve --db ./data/pos.db
  DB_DRIVER=postgres DATABASE_URL=postgres://... ./server migrate
  ./server report --db ":memory:"
*/
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/warp/pos-ledger/internal/config"
	"github.com/warp/pos-ledger/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Flags may still override the environment, so validation runs in
	// the root command's PersistentPreRunE.
	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	closer, err := logger.Setup(cfg.GetLoggerConfig())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer closer.Close()

	if err := newRootCmd(cfg).ExecuteContext(context.Background()); err != nil {
		cmdLog := logger.WithComponent("cmd")
		cmdLog.Error().Err(err).Msg("command failed")
		closer.Close()
		os.Exit(1)
	}
}
