package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/certs/internal/cmdargs"
	"github.com/example/certs/internal/wire"
)

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage database-stored command arguments",
		Long: `Each batch command reads its arguments from a configuration row when run
with --args-from-database. Rows are append-only; the newest row is current.`,
	}
	cmd.AddCommand(configSetCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configSetCmd() *cobra.Command {
	var (
		enabled   bool
		arguments string
	)
	cmd := &cobra.Command{
		Use:   "set [name]",
		Short: "Store new arguments for a command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, err := cmdargs.Tokenize(arguments); err != nil {
				return err
			}
			if err := wire.AdminService().SetCommandConfig(context.Background(), name, enabled, arguments); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Printf("✓ Saved %s (enabled: %t)\n", name, enabled)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", false, "Allow --args-from-database to use this row")
	cmd.Flags().StringVar(&arguments, "args", "", "Shell-style argument string")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Show the current arguments of a command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := wire.AdminService().GetCommandConfig(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("configuration not found: %w", err)
			}

			state := color.New(color.FgYellow).Sprint("disabled")
			if cfg.Enabled {
				state = color.New(color.FgGreen).Sprint("enabled")
			}
			fmt.Printf("%s (%s)\n", cfg.Name, state)
			fmt.Printf("  Arguments: %s\n", cfg.Arguments)
			fmt.Printf("  Changed:   %s\n", formatTime(cfg.ChangedAt))
			return nil
		},
	}
}

// EventsCmd returns the events command
func EventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect emitted lifecycle events",
	}

	var (
		courseKey string
		limit     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent lifecycle events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := wire.AdminService().ListEvents(context.Background(), courseKey, limit)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No events found")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("  %s  %-32s user %-8d %s %s\n",
					formatTime(e.CreatedAt), e.SignalName, e.UserID, e.CourseKey, statusLabel(e.Status))
			}
			return nil
		},
	}
	list.Flags().StringVar(&courseKey, "course", "", "Only events of this course")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum events to show")
	cmd.AddCommand(list)
	return cmd
}
