package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/certs/internal/cmdargs"
	"github.com/example/certs/internal/core/coursekey"
	"github.com/example/certs/internal/wire"
)

// CourseCmd returns the course command
func CourseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Manage course certificate settings",
	}
	cmd.AddCommand(courseIDVExemptCmd())
	return cmd
}

func courseIDVExemptCmd() *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "idv-exempt [course-key]",
		Short: "Waive identity verification for a course",
		Long: `Mark a course as no longer requiring identity verification, for example
after it moved to honor code. Run regenerate_noidv_cert afterwards to
re-evaluate the unverified certificates of the course.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseKey := args[0]
			if _, err := coursekey.Parse(courseKey); err != nil {
				return &cmdargs.ConfigError{Msg: "invalid course key " + courseKey, Err: err}
			}
			if err := wire.AdminService().SetCourseIDVExempt(commandContext("course"), courseKey, !restore); err != nil {
				return err
			}
			if restore {
				fmt.Printf("✓ %s requires identity verification\n", courseKey)
				return nil
			}
			fmt.Printf("✓ %s no longer requires identity verification\n", courseKey)
			return nil
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "Require identity verification again")
	return cmd
}
