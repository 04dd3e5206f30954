package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/certs/internal/cmdargs"
	"github.com/example/certs/internal/core/coursekey"
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/wire"
)

// AllowlistCmd returns the allowlist command
func AllowlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Manage the certificate allowlist",
		Long:  "Add, remove, and list learners exempt from the grade requirement.",
	}
	cmd.AddCommand(allowlistAddCmd())
	cmd.AddCommand(allowlistRemoveCmd())
	cmd.AddCommand(allowlistListCmd())
	return cmd
}

func allowlistAddCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "add [user-id] [course-key]",
		Short: "Add a learner to the allowlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			outcome, err := wire.AdminService().AddToAllowlist(commandContext("allowlist"), userID, courseKey, notes)
			if err != nil {
				return fmt.Errorf("failed to add allowlist entry: %w", err)
			}
			fmt.Printf("✓ Allowlisted user %d in %s\n", userID, courseKey)
			printOutcome(outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Reason for the exception")
	return cmd
}

func allowlistRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [user-id] [course-key]",
		Short: "Remove a learner from the allowlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			outcome, err := wire.AdminService().RemoveFromAllowlist(commandContext("allowlist"), userID, courseKey)
			if err != nil {
				return fmt.Errorf("failed to remove allowlist entry: %w", err)
			}
			fmt.Printf("✓ Removed user %d from the %s allowlist\n", userID, courseKey)
			printOutcome(outcome)
			return nil
		},
	}
}

func allowlistListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [course-key]",
		Short: "List allowlist entries of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseKey := args[0]
			if _, err := coursekey.Parse(courseKey); err != nil {
				return &cmdargs.ConfigError{Msg: "invalid course key " + courseKey, Err: err}
			}
			entries, err := wire.AdminService().ListAllowlist(context.Background(), courseKey)
			if err != nil {
				return fmt.Errorf("failed to list allowlist: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No allowlist entries found")
				return nil
			}

			fmt.Printf("Found %d allowlist entr(ies):\n\n", len(entries))
			for _, e := range entries {
				fmt.Printf("  %s user %-8d %s", enabledIcon(e), e.UserID, formatTime(e.CreatedAt))
				if e.Notes != "" {
					fmt.Printf(" - %s", e.Notes)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func enabledIcon(e *primary.AllowlistEntry) string {
	if e.Enabled {
		return color.New(color.FgGreen).Sprint("✓")
	}
	return color.New(color.FgYellow).Sprint("○")
}

// InvalidationCmd returns the invalidation command
func InvalidationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidation",
		Short: "Invalidate or reinstate certificates",
	}
	cmd.AddCommand(invalidationAddCmd())
	cmd.AddCommand(invalidationRemoveCmd())
	return cmd
}

func invalidationAddCmd() *cobra.Command {
	var (
		invalidator int64
		notes       string
	)
	cmd := &cobra.Command{
		Use:   "add [user-id] [course-key]",
		Short: "Invalidate a learner's certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			outcome, err := wire.AdminService().Invalidate(commandContext("invalidation"), primary.InvalidateRequest{
				UserID:        userID,
				CourseKey:     courseKey,
				InvalidatorID: invalidator,
				Notes:         notes,
			})
			if err != nil {
				return fmt.Errorf("failed to invalidate certificate: %w", err)
			}
			fmt.Printf("✓ Invalidated certificate of user %d in %s\n", userID, courseKey)
			printOutcome(outcome)
			return nil
		},
	}
	cmd.Flags().Int64Var(&invalidator, "invalidator", 0, "User ID of the operator")
	cmd.Flags().StringVar(&notes, "notes", "", "Reason for the invalidation")
	return cmd
}

func invalidationRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [user-id] [course-key]",
		Short: "Reinstate an invalidated certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			outcome, err := wire.AdminService().Reinstate(commandContext("invalidation"), userID, courseKey)
			if err != nil {
				return fmt.Errorf("failed to reinstate certificate: %w", err)
			}
			fmt.Printf("✓ Reinstated certificate of user %d in %s\n", userID, courseKey)
			printOutcome(outcome)
			return nil
		},
	}
}
