package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"filetransfer/pkg/client"
	"filetransfer/pkg/config"
	"filetransfer/pkg/logger"
)

var (
	configPath string
	serverURL  string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "filetransfer",
	Short: "Streaming multipart file transfer server and client",
	Long: `filetransfer accepts multipart/form-data uploads of any size with a fixed
memory footprint and serves stored files back with zero-copy delivery.

Run "filetransfer serve" to start the server; the upload, download and list
commands talk to a running server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, source, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("server") {
			loaded.Client.ServerURL = serverURL
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if err := setupLogging(loaded); err != nil {
			return err
		}

		cfg = loaded
		logger.Debug("configuration loaded", "source", source)
		return nil
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which aborts running transfers.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", config.DefaultConfig.Client.ServerURL,
		"Server URL used by client commands")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultConfig.Logging.Level,
		"Log level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func setupLogging(c *config.Config) error {
	level, err := logger.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	out, err := logger.OpenOutput(c.Logging.Output)
	if err != nil {
		return err
	}
	logger.SetDefault(logger.NewWithConfig(logger.Config{
		Level:  level,
		Output: out,
		Format: c.Logging.Format,
	}))
	return nil
}

// newClient builds a client from the loaded configuration.
func newClient() (*client.Client, error) {
	c, err := client.New(cfg.Client.ServerURL, cfg.Client.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}
