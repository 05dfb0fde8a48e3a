package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fishlens/fishlens/pkg/audit"
	"github.com/fishlens/fishlens/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the finalize audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		kind        string
		outcome     string
		fingerprint string
		since       string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				Outcome:     outcome,
				Fingerprint: fingerprint,
				Limit:       limit,
			}
			if kind != "" {
				if opts.Kind, err = models.ParseAnalysisKind(kind); err != nil {
					return err
				}
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatAuditEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "filter by analysis kind")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (finalized, rejected, reused)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "filter by image fingerprint")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a single audit entry by request ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request-id is required")
			}

			l, cleanup, err := openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{
				RequestID: requestID,
				Limit:     1,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entry found for that request ID.")
				return nil
			}

			e := entries[0]
			fmt.Printf("Request ID:    %s\n", e.RequestID)
			fmt.Printf("Fingerprint:   %s\n", e.Fingerprint)
			fmt.Printf("Kind:          %s\n", e.Kind)
			fmt.Printf("Outcome:       %s\n", e.Outcome)
			fmt.Printf("Confidence:    %d%%\n", e.Confidence)
			if len(e.Violations) > 0 {
				fmt.Printf("Violations:    %s\n", joinViolations(e.Violations))
			}
			if e.Error != "" {
				fmt.Printf("Error:         %s\n", e.Error)
			}
			fmt.Printf("Source:        %s\n", e.Source)
			if e.VocabularyVersion > 0 {
				fmt.Printf("Vocabulary:    v%d\n", e.VocabularyVersion)
			}
			fmt.Printf("Time:          %s\n", e.CreatedAt.Local().Format(time.RFC3339))
			if e.RawText != "" {
				fmt.Printf("\n--- Model Output ---\n%s\n", e.RawText)
			}
			if e.Normalized != "" {
				fmt.Printf("\n--- Normalized ---\n%s\n", e.Normalized)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID to show")
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audit log statistics by kind, outcome and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}
}

func newAuditCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", deleted)
			return nil
		},
	}
}

func openAuditLogger() (*audit.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func joinViolations(vs []models.ViolationKind) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = string(v)
	}
	return strings.Join(s, ", ")
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-34s %-10s %-10s %5s %-5s %-20s\n",
		"REQUEST ID", "FINGERPRINT", "KIND", "OUTCOME", "CONF", "SRC", "TIME")
	b.WriteString(strings.Repeat("-", 126) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-36s %-34s %-10s %-10s %4d%% %-5s %-20s\n",
			e.RequestID, e.Fingerprint, e.Kind, e.Outcome, e.Confidence, e.Source,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-10s %-10s %8s %9s\n", "DAY", "KIND", "OUTCOME", "COUNT", "AVG CONF")
	b.WriteString(strings.Repeat("-", 53) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-10s %-10s %8d %8.1f%%\n", s.Day, s.Kind, s.Outcome, s.Count, s.AvgConfidence)
	}
	return b.String()
}
