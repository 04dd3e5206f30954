package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/certs/internal/cmdargs"
	"github.com/example/certs/internal/core/coursekey"
	"github.com/example/certs/internal/wire"
)

// SignalCmd returns the signal command
func SignalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Record learner state changes and re-evaluate certificates",
		Long: `Persist a grade, enrollment, or verification change the way the platform
would, then run the matching lifecycle signal.`,
	}
	cmd.AddCommand(signalGradeCmd())
	cmd.AddCommand(signalEnrollmentCmd())
	cmd.AddCommand(signalVerificationCmd())
	return cmd
}

func signalGradeCmd() *cobra.Command {
	var (
		percent string
		passed  bool
	)
	cmd := &cobra.Command{
		Use:   "grade-changed [user-id] [course-key]",
		Short: "Record a course grade",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			if _, err := strconv.ParseFloat(percent, 64); err != nil {
				return cmdargs.Errorf("invalid --percent %q", percent)
			}
			outcome, err := wire.AdminService().RecordGrade(commandContext("signal"), userID, courseKey, percent, passed)
			if err != nil {
				return fmt.Errorf("grade signal failed: %w", err)
			}
			printOutcome(outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&percent, "percent", "0", "Grade as a fraction, e.g. 0.87")
	cmd.Flags().BoolVar(&passed, "passed", false, "Whether the grade is passing")
	return cmd
}

func signalEnrollmentCmd() *cobra.Command {
	var (
		mode     string
		inactive bool
	)
	cmd := &cobra.Command{
		Use:   "enrollment-changed [user-id] [course-key]",
		Short: "Record an enrollment mode change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			outcome, err := wire.AdminService().RecordEnrollment(commandContext("signal"), userID, courseKey, mode, !inactive)
			if err != nil {
				return fmt.Errorf("enrollment signal failed: %w", err)
			}
			printOutcome(outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "New enrollment mode")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Mark the enrollment inactive")
	_ = cmd.MarkFlagRequired("mode")
	return cmd
}

func signalVerificationCmd() *cobra.Command {
	var verification string
	cmd := &cobra.Command{
		Use:   "idv-changed [user-id]",
		Short: "Record an identity verification status change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			outcomes, err := wire.AdminService().RecordVerification(commandContext("signal"), userID, verification)
			if err != nil {
				return fmt.Errorf("verification signal failed: %w", err)
			}
			if len(outcomes) == 0 {
				fmt.Println("No active enrollments to re-evaluate")
				return nil
			}
			printOutcomes(outcomes)
			return nil
		},
	}
	cmd.Flags().StringVar(&verification, "status", "", "Verification status (none, pending, approved, denied, expired)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func parseUserID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, cmdargs.Errorf("invalid user id %q", v)
	}
	return id, nil
}

func userAndCourse(args []string) (int64, string, error) {
	userID, err := parseUserID(args[0])
	if err != nil {
		return 0, "", err
	}
	if _, err := coursekey.Parse(args[1]); err != nil {
		return 0, "", &cmdargs.ConfigError{Msg: "invalid course key " + args[1], Err: err}
	}
	return userID, args[1], nil
}
