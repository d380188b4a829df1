package cmd

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joescharf/arq/internal/intake"
	"github.com/joescharf/arq/internal/notify"
	"github.com/joescharf/arq/internal/output"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload supporting documents",
	Long: fmt.Sprintf(`Validate and upload documents to the backend.

Files larger than %s or of a type other than PDF, plain text or Word
are rejected before anything is sent. Each accepted file is uploaded
on its own; one failure does not stop the others.`, humanize.IBytes(intake.MaxFileSize)),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadRun(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func uploadRun(cmd *cobra.Command, paths []string) error {
	ctx := commandContext(cmd)
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		for _, p := range paths {
			f, err := intake.Inspect(p)
			if err != nil {
				ui.Warning("Would reject %v", err)
				continue
			}
			ui.DryRunMsg("Would upload %s (%s, %s)", f.Name, f.ContentType, humanize.IBytes(uint64(f.Size)))
		}
		return nil
	}

	results := a.intake.Submit(ctx, paths)

	table := ui.Table([]string{"File", "Size", "Type", "Pages", "Result"})
	failed := 0
	for _, r := range results {
		name, size, ctype, pages := r.Path, "-", "-", "-"
		if r.File != nil {
			name = r.File.Name
			size = humanize.IBytes(uint64(r.File.Size))
			ctype = r.File.ContentType
			if r.File.Pages > 0 {
				pages = strconv.Itoa(r.File.Pages)
			}
		}
		result := output.Green(r.FileID)
		if r.Err != nil {
			failed++
			result = output.Red(r.Err.Error())
		}
		_ = table.Append([]string{name, size, ctype, pages, result})
	}
	_ = table.Render()

	if failed > 0 {
		return notify.Reported(fmt.Errorf("%d of %d files not uploaded", failed, len(results)))
	}
	return nil
}

// uploadedIDs returns the backend IDs of the files that were uploaded.
func uploadedIDs(results []intake.Result) []string {
	return intake.FileIDs(results)
}
