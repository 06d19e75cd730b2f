package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"sonyhub/internal/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "sonyhub",
	Short: "sonyhub - control Sony TVs, players and receivers on the local network",
	Long: `sonyhub talks to Sony devices over their native protocols: ScalarWeb
(HTTP and WebSocket), IRCC remote codes, DIAL and the Simple IP control port.
It can be used one command at a time or run as a hub with an HTTP API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// enableDebug turns on logging for commands with their own --debug flag
func enableDebug(debug bool) {
	if debug {
		logger.SetSilentMode(false)
		logger.SetLevel(logger.LOG_DEBUG)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
