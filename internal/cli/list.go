package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filetransfer/pkg/client"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored files",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	listing, err := c.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if len(listing.Files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No files found")
		return nil
	}

	formatFileList(cmd.OutOrStdout(), listing)
	return nil
}

func formatFileList(w io.Writer, listing *client.Listing) {
	maxNameWidth := len("NAME")

	// find the maximum width needed for the name column
	for _, f := range listing.Files {
		if len(f.Name) > maxNameWidth {
			maxNameWidth = len(f.Name)
		}
	}
	maxNameWidth += 2

	fmt.Fprintf(w, "%-*s %10s  %s\n", maxNameWidth, "NAME", "SIZE", "MODIFIED")
	fmt.Fprintf(w, "%s %s  %s\n",
		strings.Repeat("-", maxNameWidth),
		strings.Repeat("-", 10),
		strings.Repeat("-", 19))

	for _, f := range listing.Files {
		fmt.Fprintf(w, "%-*s %10s  %s\n",
			maxNameWidth, f.Name,
			humanize.Bytes(uint64(f.Size)),
			f.ModTime.Local().Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(w, "\n%d files, %s total\n", len(listing.Files), humanize.Bytes(uint64(listing.TotalSize)))
}
