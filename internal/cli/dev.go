package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/certs/internal/db"
	"github.com/example/certs/internal/wire"
)

// DevCmd returns the dev command group for development utilities.
func DevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development utilities",
	}
	cmd.AddCommand(devSeedCmd())
	return cmd
}

func devSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load development fixtures",
		Long: `Insert the demo courses and learners 42 to 46 with enrollments, grades
and verifications, plus an allowlist entry, a program, a site, and a
certificate template.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.SeedFixtures(wire.DB(), wire.Config().DatabaseDriver); err != nil {
				return fmt.Errorf("failed to seed fixtures: %w", err)
			}
			fmt.Printf("✓ Seeded fixtures for %s\n", db.DemoCourseKey)
			return nil
		},
	}
}
