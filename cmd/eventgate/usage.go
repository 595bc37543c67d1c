package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/eventgate/pkg/cli"
	"mercator-hq/eventgate/pkg/store"
	"mercator-hq/eventgate/pkg/usage/storage"
)

var usageFlags struct {
	eventID string
	since   string
	format  string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the usage ledger",
}

var usageReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize an event's usage by deployment",
	Long: `Aggregate request counts and token usage for an event from the usage
ledger, grouped by catalog deployment.

--since accepts an RFC 3339 timestamp, a date (2026-03-01) or a duration
back from now (24h). It defaults to the start of the current UTC day.

Examples:
  eventgate usage report --event hackathon-2026
  eventgate usage report --event hackathon-2026 --since 168h --format csv`,
	RunE: reportUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageReportCmd)

	usageReportCmd.Flags().StringVar(&usageFlags.eventID, "event", "", "event id (required)")
	usageReportCmd.Flags().StringVar(&usageFlags.since, "since", "", "report start (RFC 3339, date or duration)")
	usageReportCmd.Flags().StringVar(&usageFlags.format, "format", "text", "output format: text, json, csv")
	_ = usageReportCmd.MarkFlagRequired("event")
}

// usageReport is the Tabular rendering of a ledger summary.
type usageReport struct {
	EventID     string                    `json:"event_id"`
	Since       time.Time                 `json:"since"`
	Deployments []storage.DeploymentUsage `json:"deployments"`
}

func (r usageReport) Headers() []string {
	return []string{"CATALOG ID", "REQUESTS", "PROMPT", "COMPLETION", "TOTAL"}
}

func (r usageReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Deployments)+1)
	var sum storage.DeploymentUsage
	for _, u := range r.Deployments {
		rows = append(rows, usageRow(u.CatalogID, u))
		sum.Requests += u.Requests
		sum.PromptTokens += u.PromptTokens
		sum.CompletionTokens += u.CompletionTokens
		sum.TotalTokens += u.TotalTokens
	}
	if len(r.Deployments) > 1 {
		rows = append(rows, usageRow("(total)", sum))
	}
	return rows
}

func usageRow(label string, u storage.DeploymentUsage) []string {
	return []string{
		label,
		strconv.FormatInt(u.Requests, 10),
		strconv.FormatInt(u.PromptTokens, 10),
		strconv.FormatInt(u.CompletionTokens, 10),
		strconv.FormatInt(u.TotalTokens, 10),
	}
}

// parseSince resolves the --since flag against now.
func parseSince(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return store.StartOfDayUTC(now), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: want RFC 3339, YYYY-MM-DD or a positive duration", value)
}

func reportUsage(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(usageFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	since, err := parseSince(usageFlags.since, time.Now())
	if err != nil {
		return cli.NewConfigError("since", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return cli.NewCommandError("usage report", err)
	}
	defer ledger.Close()

	summary, err := ledger.Summary(cmd.Context(), usageFlags.eventID, since)
	if err != nil {
		return cli.NewCommandError("usage report", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatText {
		fmt.Fprintf(out, "Usage for %s since %s\n\n", usageFlags.eventID, since.Format(time.RFC3339))
		if len(summary) == 0 {
			fmt.Fprintln(out, "No requests recorded.")
			return nil
		}
	}
	return cli.NewFormatter(format).FormatTo(out, usageReport{
		EventID:     usageFlags.eventID,
		Since:       since,
		Deployments: summary,
	})
}
