package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/certs/internal/wire"
)

// CertCmd returns the cert command
func CertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Inspect certificates",
	}
	cmd.AddCommand(certShowCmd())
	cmd.AddCommand(certHistoryCmd())
	return cmd
}

func certShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [user-id] [course-key]",
		Short: "Show a learner's certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			cert, err := wire.AdminService().GetCertificate(context.Background(), userID, courseKey)
			if err != nil {
				return fmt.Errorf("certificate not found: %w", err)
			}
			printCertificate(cert)
			return nil
		},
	}
}

func certHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [user-id] [course-key]",
		Short: "Show the audited changes of a certificate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, courseKey, err := userAndCourse(args)
			if err != nil {
				return err
			}
			entries, err := wire.AdminService().CertificateHistory(context.Background(), userID, courseKey)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No history recorded")
				return nil
			}

			for _, h := range entries {
				fmt.Printf("  %s  %-18s %-14s %-6s %s\n",
					formatTime(h.CreatedAt), h.Status, h.Mode, h.Grade, h.Source)
			}
			return nil
		},
	}
}
