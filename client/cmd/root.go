package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	clientapi "github.com/julienstroheker/RelayGate/client/api"
	"github.com/julienstroheker/RelayGate/internal/logging"
)

var (
	apiURLFlag  string
	timeoutFlag time.Duration
	traceIDFlag string
	verboseFlag bool
	jsonFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Inspect a running RelayGate relay",
	Long:  `relayctl - query the read-only status API of a running relaygate`,
	// usage is noise once arguments parsed; errors are printed by Execute
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	defaultURL := os.Getenv("RELAYCTL_API_URL")
	if defaultURL == "" {
		defaultURL = clientapi.DefaultBaseURL
	}

	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", defaultURL, "Base URL of the relaygate status API")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&traceIDFlag, "trace-id", "", "Trace id sent with every request")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log HTTP requests to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print raw JSON instead of text")
}

// newClient builds a status API client from the persistent flags
func newClient(cmd *cobra.Command) *clientapi.Client {
	var logger *logging.Logger
	if verboseFlag {
		logger = logging.NewWithFormatAndOutput(logging.DebugLevel, logging.FormatConsole, cmd.ErrOrStderr())
	}

	return clientapi.NewClient(&clientapi.Options{
		BaseURL:    apiURLFlag,
		Timeout:    timeoutFlag,
		MaxRetries: 2,
		TraceID:    traceIDFlag,
		Logger:     logger,
	})
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
