package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filetransfer/pkg/client"
)

func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download NAME",
		Short: "Download a stored file",
		Long: `Download a stored file by name. The file is written to the current
directory under its own name unless --output is given; "-" writes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			c, err := newClient()
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := c.Download(cmd.Context(), name, cmd.OutOrStdout())
				return err
			}

			target := output
			if target == "" {
				target = filepath.Base(name)
			}
			n, err := downloadTo(cmd.Context(), c, name, target)
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", target, humanize.Bytes(uint64(n)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path, or - for stdout")
	return cmd
}

// downloadTo writes to a temporary file next to target and renames it into
// place once the whole file has arrived.
func downloadTo(ctx context.Context, c *client.Client, name, target string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".part-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := c.Download(ctx, name, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), target)
}
