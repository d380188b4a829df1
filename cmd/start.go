package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/arq/internal/form"
)

var startFiles []string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new analysis from the saved form",
	Long: `Start a new analysis using the saved input form.

Any --<field> flag updates the saved form first, so the value is kept for
later runs. The segment (--segmento) must be at least 3 characters.

By default arq stays attached and prints progress until the analysis
finishes. Use --detach to watch in the background or --no-watch to return
immediately.`,
	Example: `  arq start --segmento "Fitness" --produto "Online coaching"
  arq start --file brief.pdf --detach`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startRun(cmd)
	},
}

func init() {
	for _, name := range form.Fields {
		startCmd.Flags().String(name, "", "Set form field "+name)
	}
	startCmd.Flags().StringSliceVarP(&startFiles, "file", "f", nil, "Upload supporting documents before starting")
	addWatchFlags(startCmd)
	rootCmd.AddCommand(startCmd)
}

func startRun(cmd *cobra.Command) error {
	ctx, cancel := watchContext(cmd)
	defer cancel()

	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	changed := 0
	for _, name := range form.Fields {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, _ := cmd.Flags().GetString(name)
		if err := a.form.Set(name, v); err != nil {
			return err
		}
		changed++
	}
	if changed > 0 && !dryRun {
		if err := a.persister.Save(ctx); err != nil {
			ui.Warning("Could not save form: %v", err)
		}
	}

	if dryRun {
		ui.DryRunMsg("Would start analysis for segment %q", a.form.Get(form.FieldSegment))
		return nil
	}

	if len(startFiles) > 0 {
		results := a.intake.Submit(ctx, startFiles)
		ui.VerboseLog("Uploaded %d of %d files", len(uploadedIDs(results)), len(results))
	}

	a.watcher.mode = selectedWatchMode()
	if _, err := a.ctrl.Start(ctx, a.form.Payload()); err != nil {
		return err
	}
	return a.watcher.follow(ctx)
}
