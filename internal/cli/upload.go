package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filetransfer/pkg/client"
)

func newUploadCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files to the server",
		Long: `Upload one or more files in a single multipart request. Files are streamed
from disk; nothing is buffered in memory.

Examples:
  filetransfer upload report.pdf
  filetransfer upload --server http://files.local:8080 *.tar.gz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			var progress client.ProgressFunc
			if !quiet {
				progress = newProgressPrinter(cmd.ErrOrStderr())
			}

			result, err := c.UploadFiles(cmd.Context(), args, progress)
			if !quiet {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Upload %s (%s)\n", result.UploadID, result.Duration)
			for _, f := range result.Files {
				fmt.Fprintf(out, "  %-40s %10s  blake3:%s\n", f.Filename, humanize.Bytes(uint64(f.Size)), f.Digest)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

// newProgressPrinter redraws one status line at most every 200ms.
func newProgressPrinter(w io.Writer) client.ProgressFunc {
	var last time.Time
	return func(name string, sent, total int64) {
		if sent != total && time.Since(last) < 200*time.Millisecond {
			return
		}
		last = time.Now()
		if total > 0 {
			fmt.Fprintf(w, "\r%s: %s / %s (%.0f%%)   ", name,
				humanize.Bytes(uint64(sent)), humanize.Bytes(uint64(total)),
				float64(sent)*100/float64(total))
			return
		}
		fmt.Fprintf(w, "\r%s: %s   ", name, humanize.Bytes(uint64(sent)))
	}
}
