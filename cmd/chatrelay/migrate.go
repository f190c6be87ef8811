package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memohai/chatrelay/internal/db"
	"github.com/memohai/chatrelay/internal/storage/sqlite"
)

func migrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema for the configured storage driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch cfg.Storage.Driver {
			case "postgres":
				if down {
					if err := db.MigrateDown(cfg.Postgres); err != nil {
						return err
					}
					fmt.Fprintln(out, "postgres schema rolled back")
					return nil
				}
				version, err := db.Migrate(cfg.Postgres)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "postgres schema at version %d\n", version)
			case "sqlite":
				if down {
					return fmt.Errorf("--down is only supported for postgres")
				}
				gdb, err := sqlite.Open(cfg.SQLite.Path)
				if err != nil {
					return err
				}
				if sqlDB, err := gdb.DB(); err == nil {
					_ = sqlDB.Close()
				}
				fmt.Fprintf(out, "sqlite schema ready at %s\n", cfg.SQLite.Path)
			default:
				fmt.Fprintf(out, "storage driver %q has no schema\n", cfg.Storage.Driver)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every postgres migration")
	return cmd
}
