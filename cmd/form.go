package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/arq/internal/form"
	"github.com/joescharf/arq/internal/output"
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Show and edit the saved analysis form",
	Long: `The analysis form is saved locally and reused by arq start.

Fields: ` + fmt.Sprint(form.Fields),
}

var formShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(commandContext(cmd))
		if err != nil {
			return err
		}
		snap := a.form.Snapshot()
		for _, name := range form.Fields {
			value := snap[name]
			if value == "" {
				value = output.Faint("(empty)")
			}
			fmt.Fprintf(ui.Out, "  %-20s %s\n", name+":", value)
		}
		return nil
	},
}

var formSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set one form field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if !form.IsField(args[0]) {
			// Set rejects it with the list of known fields.
			return a.form.Set(args[0], args[1])
		}
		if dryRun {
			ui.DryRunMsg("Would set %s to %q", args[0], args[1])
			return nil
		}
		a.persister.Start(ctx)
		defer a.persister.Stop()
		if err := a.form.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := a.persister.Flush(ctx); err != nil {
			return err
		}
		ui.Success("Set %s", args[0])
		return nil
	},
}

var formLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load form fields from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would load form from %s", args[0])
			return nil
		}
		n, err := form.LoadFile(a.form, args[0])
		if err != nil {
			return err
		}
		if err := a.persister.Save(ctx); err != nil {
			return err
		}
		ui.Success("Loaded %d fields from %s", n, args[0])
		return nil
	},
}

var formEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Fill in the form interactively",
	Long: `Prompt for every form field. Press Enter to keep the current value,
or enter a single "-" to clear it. Changes are saved as you type.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return formEditRun(cmd)
	},
}

var formClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the saved form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would clear the saved form")
			return nil
		}
		a.form.Clear()
		if err := a.persister.Discard(ctx); err != nil {
			return err
		}
		ui.Success("Form cleared")
		return nil
	},
}

func init() {
	formCmd.AddCommand(formShowCmd)
	formCmd.AddCommand(formSetCmd)
	formCmd.AddCommand(formLoadCmd)
	formCmd.AddCommand(formEditCmd)
	formCmd.AddCommand(formClearCmd)
	rootCmd.AddCommand(formCmd)
}

func formEditRun(cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	if !dryRun {
		a.persister.Start(ctx)
		defer a.persister.Stop()
	}

	for _, name := range form.Fields {
		current := a.form.Get(name)
		prompt := name + ": "
		if current != "" {
			prompt = fmt.Sprintf("%s [%s]: ", name, current)
		}
		answer, err := promptLine(prompt)
		if err != nil {
			break
		}
		switch answer {
		case "":
			continue
		case "-":
			answer = ""
		}
		if dryRun {
			ui.DryRunMsg("Would set %s to %q", name, answer)
			continue
		}
		if err := a.form.Set(name, answer); err != nil {
			return err
		}
	}

	if dryRun {
		return nil
	}
	if err := a.persister.Flush(ctx); err != nil {
		return err
	}
	ui.Success("Form saved")
	return nil
}
