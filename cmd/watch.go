package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/arq/internal/output"
	"github.com/joescharf/arq/internal/progress"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch [session-id]",
	Short: "Watch analysis progress",
	Long: `Poll a session's progress every few seconds until it completes or fails.

Without an ID, the current session is watched. Only one watcher runs per
client: starting a new one stops the previous watcher process.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun(cmd, args)
	},
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a watcher is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, running := watchPIDFile().IsRunning()
		if !running {
			ui.Info("No watcher running")
			return nil
		}
		ui.Info("Watcher running (pid %d, log: %s)", pid, watchLogPath())
		return nil
	},
}

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchStopRun()
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Print the current progress and module grid, then exit")
	watchCmd.AddCommand(watchStatusCmd)
	watchCmd.AddCommand(watchStopCmd)
	rootCmd.AddCommand(watchCmd)
}

func watchRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := watchContext(cmd)
	defer cancel()

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

	if watchOnce {
		snap, err := a.client.Progress(ctx, id)
		if err != nil {
			return fmt.Errorf("get progress: %w", err)
		}
		ui.Info("Session %s", output.Cyan(id))
		progress.RenderGrid(ui, snap)
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would watch session %s", id)
		return nil
	}

	a.watcher.mode = watchForeground
	ui.Info("Watching %s (Ctrl-C to stop)", output.Cyan(id))
	a.watcher.Start(ctx, id)
	return a.watcher.follow(ctx)
}

func watchStopRun() error {
	pidFile := watchPIDFile()
	if _, running := pidFile.IsRunning(); !running {
		_ = pidFile.Remove()
		return errors.New("watcher is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop watcher")
		return nil
	}

	pid, err := pidFile.Terminate()
	if err != nil {
		return err
	}
	_ = pidFile.Remove()
	ui.Success("Stopped watcher (pid %d)", pid)
	return nil
}
