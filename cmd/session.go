package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/arq/internal/output"
	"github.com/joescharf/arq/internal/sessions"
)

var (
	sessionCached     bool
	sessionResultsOut string
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Manage analysis sessions",
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun(cmd)
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a cached session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(cmd, args[0])
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Fetch a session's status from the backend",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStatusRun(cmd, args)
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would pause session %s", a.ctrl.Current())
			return nil
		}
		return a.ctrl.Pause(ctx)
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := watchContext(cmd)
		defer cancel()
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would resume session %s", a.ctrl.Current())
			return nil
		}
		a.watcher.mode = selectedWatchMode()
		if err := a.ctrl.Resume(ctx); err != nil {
			return err
		}
		return a.watcher.follow(ctx)
	},
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the current session's progress on the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would save session %s", a.ctrl.Current())
			return nil
		}
		return a.ctrl.Save(ctx)
	},
}

var sessionContinueCmd = &cobra.Command{
	Use:   "continue <session-id>",
	Short: "Continue a paused, saved or failed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := watchContext(cmd)
		defer cancel()
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would continue session %s", args[0])
			return nil
		}
		a.watcher.mode = selectedWatchMode()
		if err := a.ctrl.Continue(ctx, args[0]); err != nil {
			return err
		}
		return a.watcher.follow(ctx)
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:     "delete <session-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would delete session %s", args[0])
			return nil
		}
		return cancelled(a.ctrl.Delete(ctx, args[0]))
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would delete all %d sessions", a.sessions.Len())
			return nil
		}
		return cancelled(a.ctrl.ClearAll(ctx))
	},
}

var sessionResultsCmd = &cobra.Command{
	Use:   "results <session-id>",
	Short: "Show a completed session's report",
	Long: `Fetch the report of a completed session.

An HTML report is written to --out, or to stdout when no file is given.
A report URL is printed. A structured analysis result is printed as YAML.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionResultsRun(cmd, args[0])
	},
}

func init() {
	sessionListCmd.Flags().BoolVar(&sessionCached, "cached", false, "List the local cache without contacting the backend")
	sessionResultsCmd.Flags().StringVarP(&sessionResultsOut, "out", "o", "", "Write an HTML report to this file")
	addWatchFlags(sessionResumeCmd)
	addWatchFlags(sessionContinueCmd)

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionSaveCmd)
	sessionCmd.AddCommand(sessionContinueCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	sessionCmd.AddCommand(sessionResultsCmd)
	rootCmd.AddCommand(sessionCmd)
}

// cancelled turns a declined confirmation into a quiet success.
func cancelled(err error) error {
	if errors.Is(err, sessions.ErrCancelled) {
		ui.Info("Cancelled")
		return nil
	}
	return err
}

func sessionListRun(cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	if !sessionCached {
		if err := a.ctrl.Refresh(ctx); err != nil {
			ui.Info("Showing %d cached sessions", a.sessions.Len())
		}
	}

	cards := sessions.Cards(a.sessions.List())
	if len(cards) == 0 {
		ui.Info("No sessions. Start one with: arq start --segmento <segment>")
		return nil
	}

	current := a.ctrl.Current()
	table := ui.Table([]string{"", "ID", "Status", "Segment", "Product", "Started", "Saved", "Actions"})
	for _, c := range cards {
		marker := ""
		if c.Session.ID == current {
			marker = output.Cyan("*")
		}
		started := "-"
		if !c.Session.StartedAt.IsZero() {
			started = humanize.Time(c.Session.StartedAt)
		}
		saved := "-"
		if c.Session.SavedStages > 0 {
			saved = strconv.Itoa(c.Session.SavedStages)
		}
		actions := make([]string, len(c.Actions))
		for i, act := range c.Actions {
			actions[i] = string(act)
		}
		_ = table.Append([]string{
			marker,
			c.Session.ID,
			output.StatusColor(string(c.Session.Status)),
			c.Session.Segment,
			c.Session.Product,
			started,
			saved,
			strings.Join(actions, ", "),
		})
	}
	_ = table.Render()
	return nil
}

func sessionShowRun(cmd *cobra.Command, id string) error {
	a, err := getApp(commandContext(cmd))
	if err != nil {
		return err
	}
	s, ok := a.sessions.Get(id)
	if !ok {
		return fmt.Errorf("session %s not in cache; run arq session list", id)
	}
	printFields(sessions.Detail(s))
	return nil
}

func sessionStatusRun(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	id := a.ctrl.Current()
	if len(args) == 1 {
		id = args[0]
	}
	if id == "" {
		return errors.New("no current session; pass a session ID")
	}
	s, err := a.ctrl.Status(ctx, id)
	if err != nil {
		return err
	}
	printFields(sessions.Detail(s))
	return nil
}

func printFields(fields []sessions.Field) {
	for _, f := range fields {
		value := f.Value
		if f.Label == "Status" {
			value = output.StatusColor(value)
		}
		fmt.Fprintf(ui.Out, "  %-14s %s\n", f.Label+":", value)
	}
}

func sessionResultsRun(cmd *cobra.Command, id string) error {
	ctx := commandContext(cmd)
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	res, err := a.ctrl.Results(ctx, id)
	if err != nil {
		return err
	}

	switch res.Kind() {
	case "html":
		if sessionResultsOut == "" {
			fmt.Fprintln(ui.Out, res.HTMLReport)
			return nil
		}
		if dryRun {
			ui.DryRunMsg("Would write report to %s", sessionResultsOut)
			return nil
		}
		if err := os.WriteFile(sessionResultsOut, []byte(res.HTMLReport), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		ui.Success("Report written to %s", sessionResultsOut)
	case "url":
		ui.Info("Report: %s", output.Cyan(res.ReportURL))
	case "analysis":
		data, err := yaml.Marshal(res.AnalysisResult)
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		fmt.Fprint(ui.Out, string(data))
	default:
		ui.Warning("Session %s has no report yet", id)
	}
	return nil
}
