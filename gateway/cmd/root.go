package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/julienstroheker/RelayGate/internal/config"
	"github.com/julienstroheker/RelayGate/internal/logging"
)

var (
	// cfg starts from the environment; start flags write into it directly
	cfg         = config.Load()
	logger      *logging.Logger
	verboseFlag bool
	jsonFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "relaygate",
	Short: "RelayGate TCP connection relay",
	Long:  `relaygate - accept TCP connections and relay each one to its target`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.ParseLevel(cfg.LogLevel)
		if verboseFlag {
			level = logging.DebugLevel
		}

		format := logging.FormatConsole
		if jsonFlag {
			format = logging.FormatJSON
		}

		logger = logging.NewWithFormatAndOutput(level, format, cmd.ErrOrStderr())
		logger.Debug("Logger initialized",
			logging.String("level", level.String()),
			logging.String("format", format.String()))
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging (debug level)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output logs in JSON format")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GetLogger returns the logger set up for the running command
func GetLogger() *logging.Logger {
	return logger
}

// GetConfig returns the effective configuration
func GetConfig() *config.Config {
	return cfg
}
