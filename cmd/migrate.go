package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"chatline/internal/config"
	"chatline/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
			cfg.DBDSN = dsn
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		database, err := db.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		defer database.Close()

		log.Printf("schema applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("dsn", "", "Postgres DSN (overrides DB_DSN)")
	rootCmd.AddCommand(migrateCmd)
}
