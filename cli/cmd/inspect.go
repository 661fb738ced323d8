package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/foundry/cli/reader"
	"github.com/pithecene-io/foundry/cli/render"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of a recorded session per CONTRACT_CLI.md.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a recorded session event stream",
		Subcommands: []*cli.Command{
			inspectSessionCommand(),
		},
	}
}

func inspectSessionCommand() *cli.Command {
	return &cli.Command{
		Name:      "session",
		Usage:     "Inspect a recorded session by its events file",
		ArgsUsage: "<events-file>",
		Flags:     TUIReadOnlyFlags(),
		Action:    inspectSessionAction,
	}
}

func inspectSessionAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("events-file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := reader.ReadReport(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_session", report)
	}

	return r.Render(report)
}

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregate counts over a recorded session.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Aggregate statistics over a recorded session event stream",
		Subcommands: []*cli.Command{
			statsSessionCommand(),
		},
	}
}

func statsSessionCommand() *cli.Command {
	return &cli.Command{
		Name:      "session",
		Usage:     "Show aggregate stats for a recorded session",
		ArgsUsage: "<events-file>",
		Flags:     TUIReadOnlyFlags(),
		Action:    statsSessionAction,
	}
}

// SessionStats is the aggregate response for the stats session command.
type SessionStats struct {
	SessionID     string `json:"session_id"`
	Events        int    `json:"events"`
	Artifacts     int    `json:"artifacts"`
	Actions       int    `json:"actions"`
	Complete      int    `json:"complete"`
	Failed        int    `json:"failed"`
	Aborted       int    `json:"aborted"`
	Previews      int    `json:"previews"`
	Errors        int    `json:"errors"`
	TerminalBytes int64  `json:"terminal_bytes"`
}

func statsSessionAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("events-file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := reader.ReadReport(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_session", report)
	}

	return r.Render(buildSessionStats(report))
}

// buildSessionStats folds a report into flat counters for table output.
func buildSessionStats(report *reader.SessionReport) SessionStats {
	stats := SessionStats{
		SessionID:     report.SessionID,
		Events:        report.EventCount,
		Artifacts:     len(report.Artifacts),
		Actions:       len(report.Actions),
		Previews:      len(report.Previews),
		Errors:        len(report.Errors),
		TerminalBytes: report.TerminalBytes,
	}
	for _, a := range report.Actions {
		switch a.Status {
		case "complete":
			stats.Complete++
		case "failed":
			stats.Failed++
		case "aborted":
			stats.Aborted++
		}
	}
	return stats
}
