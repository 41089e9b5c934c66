package cli

import (
	"github.com/spf13/cobra"

	"filetransfer/internal/modes"
)

func newServeCmd() *cobra.Command {
	var (
		port       int
		storageDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the file transfer server",
		Long: `Run the HTTP server.

Routes:
  GET  /               index page with an upload form (?format=json for JSON)
  POST /upload         multipart/form-data upload
  GET  /files/{name}   download a stored file
  GET  /healthz        liveness
  GET  /metrics        prometheus metrics (when enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("storage") {
				cfg.Storage.Dir = storageDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return modes.RunServer(cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	cmd.Flags().StringVar(&storageDir, "storage", "", "Storage directory (overrides config)")
	return cmd
}
