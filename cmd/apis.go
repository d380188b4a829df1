package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/arq/internal/apiconfig"
	"github.com/joescharf/arq/internal/health"
	"github.com/joescharf/arq/internal/notify"
	"github.com/joescharf/arq/internal/output"
)

var apisCmd = &cobra.Command{
	Use:   "apis",
	Short: "Manage the backend's external API keys",
}

var apisListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show which providers have a key configured",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if err := a.panel.Load(ctx); err != nil {
			return err
		}

		table := ui.Table([]string{"Provider", "Name", "Env", "Critical", "Configured"})
		for _, s := range a.panel.Statuses() {
			critical := ""
			if s.Critical {
				critical = "yes"
			}
			configured := output.Red("no")
			if s.Configured {
				configured = output.Green("yes")
			}
			_ = table.Append([]string{s.Label, s.Name, s.EnvVar, critical, configured})
		}
		_ = table.Render()
		return nil
	},
}

var apisSetCmd = &cobra.Command{
	Use:   "set <provider> [key]",
	Short: "Send a provider's API key to the backend",
	Long: `Send an API key to the backend. When the key is omitted it is read
from the terminal so it does not end up in shell history.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}

		name := args[0]
		key := ""
		if len(args) == 2 {
			key = args[1]
		} else {
			label := name
			if p, ok := apiconfig.Lookup(name); ok {
				label = p.Label
			}
			if key, err = promptLine(label + " API key: "); err != nil {
				return fmt.Errorf("read key: %w", err)
			}
		}

		if dryRun {
			ui.DryRunMsg("Would save the %s key", name)
			return nil
		}
		return a.panel.Save(ctx, name, key)
	},
}

var apisReadinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Score whether enough critical providers are configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if err := a.panel.Load(ctx); err != nil {
			return err
		}
		printReadiness(health.NewScorer().Score(a.panel.Statuses()))
		return nil
	},
}

var apisTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Have the backend try every configured key",
	Long: `Ask the backend to make a live call with each provider key it holds.
Providers whose key fails are marked unconfigured. Exits non-zero when any
tested key fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return apisTestRun(cmd)
	},
}

func init() {
	apisCmd.AddCommand(apisListCmd)
	apisCmd.AddCommand(apisSetCmd)
	apisCmd.AddCommand(apisReadinessCmd)
	apisCmd.AddCommand(apisTestCmd)
	rootCmd.AddCommand(apisCmd)
}

func apisTestRun(cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would test every configured API key")
		return nil
	}

	results, err := a.panel.TestAll(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	failing := 0
	table := ui.Table([]string{"Provider", "Name", "Working", "Error"})
	for _, r := range results {
		working := output.Green("yes")
		if !r.Working {
			working = output.Red("no")
			failing++
		}
		_ = table.Append([]string{r.Label, r.Name, working, r.Error})
	}
	_ = table.Render()

	if failing > 0 {
		return notify.Reported(fmt.Errorf("%d of %d API keys failed", failing, len(results)))
	}
	return nil
}

func printReadiness(r *health.Readiness) {
	verdict := output.Green("ready")
	if !r.Ready {
		verdict = output.Red("not ready")
	}
	fmt.Fprintf(ui.Out, "  Readiness:  %s\n", verdict)
	fmt.Fprintf(ui.Out, "  Critical:   %d/%d (%s)\n", r.CriticalConfigured, r.CriticalTotal,
		output.ReadinessColor(r.CriticalPercentage, health.ReadinessThreshold*100))
	fmt.Fprintf(ui.Out, "  Overall:    %d/%d (%.0f%%)\n", r.Configured, r.Total, r.HealthPercentage)
	if len(r.CriticalMissing) > 0 {
		fmt.Fprintf(ui.Out, "  Missing:    %s\n", output.Yellow(fmt.Sprint(r.CriticalMissing)))
	}
}
