package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/example/certs/internal/core/status"
	"github.com/example/certs/internal/ports/primary"
)

func printResult(name string, res *primary.CommandResult) {
	prefix := "✓"
	if res.DryRun {
		prefix = color.New(color.FgYellow).Sprint("[dry-run]")
	}
	fmt.Printf("%s %s: processed %d, enqueued %d, updated %d, skipped %d",
		prefix, name, res.Processed, res.Enqueued, res.Updated, res.Skipped)
	if res.Failed > 0 {
		fmt.Printf(", %s", color.New(color.FgRed).Sprintf("failed %d", res.Failed))
	}
	fmt.Println()
}

func printOutcomes(outcomes []*primary.Outcome) {
	for _, o := range outcomes {
		printOutcome(o)
	}
}

func printOutcome(o *primary.Outcome) {
	if o == nil {
		return
	}
	line := fmt.Sprintf("  %s user %d in %s: %s", actionIcon(o.Action), o.UserID, o.CourseKey, o.Decision)
	switch {
	case o.TaskID != 0:
		line += fmt.Sprintf(" (task %d)", o.TaskID)
	case o.Certificate != nil:
		line += fmt.Sprintf(" → %s", statusLabel(o.Certificate.Status))
	}
	fmt.Println(line)
}

func actionIcon(action string) string {
	switch action {
	case primary.ActionEnqueued:
		return color.New(color.FgBlue).Sprint("→")
	case primary.ActionUpdated:
		return color.New(color.FgGreen).Sprint("✓")
	case primary.ActionPrevented:
		return color.New(color.FgRed).Sprint("✗")
	case primary.ActionSkipped:
		return color.New(color.FgYellow).Sprint("-")
	}
	return "·"
}

func statusLabel(s string) string {
	switch {
	case status.IsPassing(status.Status(s)):
		return color.New(color.FgGreen).Sprint(s)
	case s == string(status.Unavailable), s == string(status.Error):
		return color.New(color.FgRed).Sprint(s)
	case status.IsRefundable(status.Status(s)):
		return color.New(color.FgYellow).Sprint(s)
	}
	return s
}

func printCertificate(c *primary.Certificate) {
	fmt.Printf("Certificate %d: user %d in %s\n", c.ID, c.UserID, c.CourseKey)
	fmt.Printf("  Status:      %s\n", statusLabel(c.Status))
	fmt.Printf("  Mode:        %s\n", c.Mode)
	if c.Grade != "" {
		fmt.Printf("  Grade:       %s\n", c.Grade)
	}
	if c.Name != "" {
		fmt.Printf("  Name:        %s\n", c.Name)
	}
	if c.VerifyUUID != "" {
		fmt.Printf("  Verify UUID: %s\n", c.VerifyUUID)
	}
	if c.DownloadURL != "" {
		fmt.Printf("  Download:    %s\n", c.DownloadURL)
	}
	if c.ErrorReason != "" {
		fmt.Printf("  Error:       %s\n", color.New(color.FgRed).Sprint(c.ErrorReason))
	}
	fmt.Printf("  Created:     %s\n", formatTime(c.CreatedAt))
	fmt.Printf("  Modified:    %s\n", formatTime(c.ModifiedAt))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
