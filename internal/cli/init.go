package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/certs/internal/config"
	"github.com/example/certs/internal/db"
	"github.com/example/certs/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the certs database and configuration",
		Long: `Create .certs/config.json in the current directory (if missing) and bring
the database schema up to date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			path := filepath.Join(wd, ".certs", "config.json")
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				if err := config.Save(wd, config.Default()); err != nil {
					return err
				}
				fmt.Printf("✓ Config created at %s\n", path)
			} else if err == nil {
				fmt.Printf("✓ Config exists at %s\n", path)
			} else {
				return fmt.Errorf("failed to check config: %w", err)
			}

			cfg := wire.Config()
			wire.DB()
			target := "configured DSN"
			if cfg.DatabaseDSN == "" {
				if target, err = db.GetDBPath(); err != nil {
					return err
				}
			}
			fmt.Printf("✓ Database ready (%s, schema v%d): %s\n", cfg.DatabaseDriver, db.LatestVersion(), target)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  certs dev seed")
			fmt.Println("  certs cert_generation --user 42 --course-key " + db.DemoCourseKey)
			fmt.Println("  certs worker")
			return nil
		},
	}
}
