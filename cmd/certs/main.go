package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/certs/internal/cli"
	"github.com/example/certs/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "certs",
		Short:   "certs - course certificate lifecycle engine",
		Version: version.String(),
		Long: `certs decides, generates, and revokes course certificates as learner
grades, enrollments, and identity verification change, and keeps the
credentials service informed.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.WorkerCmd())
	rootCmd.AddCommand(cli.SignalCmd())

	// Batch commands
	rootCmd.AddCommand(cli.CertGenerationCmd())
	rootCmd.AddCommand(cli.CertAllowlistGenerationCmd())
	rootCmd.AddCommand(cli.RegenerateNoIDVCertCmd())
	rootCmd.AddCommand(cli.RegenerateUnverifiedCertsCmd())
	rootCmd.AddCommand(cli.PurgePIICmd())
	rootCmd.AddCommand(cli.PurgePDFReferencesCmd())
	rootCmd.AddCommand(cli.FixCertRecordsCmd())
	rootCmd.AddCommand(cli.ModifyCertTemplateCmd())
	rootCmd.AddCommand(cli.NotifyCredentialsCmd())

	// Operator tools
	rootCmd.AddCommand(cli.AllowlistCmd())
	rootCmd.AddCommand(cli.InvalidationCmd())
	rootCmd.AddCommand(cli.CourseCmd())
	rootCmd.AddCommand(cli.CertCmd())
	rootCmd.AddCommand(cli.ConfigCmd())
	rootCmd.AddCommand(cli.EventsCmd())
	rootCmd.AddCommand(cli.DevCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
