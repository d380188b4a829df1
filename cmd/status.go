package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/arq/internal/health"
	"github.com/joescharf/arq/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend health, API readiness and the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	// A failed load is already notified; readiness then scores nothing configured.
	_ = a.panel.Load(ctx)
	rep := health.NewScorer().Check(ctx, a.client, a.panel.Statuses())

	fmt.Fprintf(ui.Out, "  Backend:    %s\n", viper.GetString("backend.url"))
	switch {
	case rep.BackendErr != nil:
		fmt.Fprintf(ui.Out, "  Health:     %s\n", output.Red("unreachable: "+rep.BackendErr.Error()))
	case rep.Backend.Healthy:
		fmt.Fprintf(ui.Out, "  Health:     %s %s\n", output.Green(rep.Backend.Status), output.Faint(rep.Backend.Version))
	default:
		fmt.Fprintf(ui.Out, "  Health:     %s\n", output.Yellow(rep.Backend.Status))
	}
	printReadiness(rep.Readiness)

	if id := a.ctrl.Current(); id != "" {
		state := ""
		if a.ctrl.Paused() {
			state = output.Yellow(" (paused)")
		}
		fmt.Fprintf(ui.Out, "  Session:    %s%s\n", output.Cyan(id), state)
	} else {
		fmt.Fprintf(ui.Out, "  Session:    %s\n", output.Faint("none"))
	}
	if pid, running := watchPIDFile().IsRunning(); running {
		fmt.Fprintf(ui.Out, "  Watcher:    pid %d\n", pid)
	}

	if !rep.Healthy() {
		return fmt.Errorf("backend not ready")
	}
	return nil
}
