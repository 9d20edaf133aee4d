package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PortNumber53/landing-api/internal/config"
	"github.com/PortNumber53/landing-api/internal/logging"
	"github.com/PortNumber53/landing-api/internal/migrations"
)

func main() {
	_ = godotenv.Load(
		"../.env",
		".env",
	)
	logging.Setup("info", "console", os.Stderr)

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbtool",
		Short:         "Database migration tooling",
		SilenceUsage: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(db *sql.DB, args []string) error {
				if err := migrations.Up(db); err != nil {
					return err
				}
				log.Info().Msg("migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withDB(func(db *sql.DB, args []string) error {
				v, dirty, err := migrations.Version(db)
				if err != nil {
					return err
				}
				fmt.Printf("version=%d dirty=%t\n", v, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(db *sql.DB, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < -1 {
					return fmt.Errorf("invalid version number: %s", args[0])
				}
				return migrations.ForceVersion(db, v)
			}),
		},
		&cobra.Command{
			Use:   "fix",
			Short: "Roll a dirty schema version back to the last clean one",
			Args:  cobra.NoArgs,
			RunE: withDB(func(db *sql.DB, args []string) error {
				return migrations.FixDirtyDatabase(db)
			}),
		},
	)

	return root
}

// withDB opens and pings the configured database before running fn.
func withDB(fn func(db *sql.DB, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.DatabaseOnly()
		if err != nil {
			return err
		}

		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}

		return fn(db, args)
	}
}
