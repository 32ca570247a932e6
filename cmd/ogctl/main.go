// Ogctl is a command-line client for OpenGarage garage door controllers.
//
// It keeps a local list of controllers, reaches each one directly on the LAN
// or through the OpenThings Cloud relay, and reads or changes door status,
// options and logs. It can also discover controllers with mDNS, run a live
// dashboard, bridge a controller to local HTTP/WebSocket clients and talk to
// the controller's MQTT broker.
//
// Usage:
//
//	ogctl [command] [flags]
//
// Running without arguments shows the current device's status.
// See 'ogctl --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/version"
)

func main() {
	err := rootCmd.Execute()
	closeApp()
	logging.Sync()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// Global flags
var (
	configPath   string
	deviceIndex  int
	outputFormat string
	logLevel     string
	assumeYes    bool
)

var rootCmd = &cobra.Command{
	Use:   "ogctl",
	Short: "OpenGarage controller client",
	Long: `A command-line client for OpenGarage garage door controllers.

Controllers are reached directly by IP address on the local network, or
through the OpenThings Cloud relay with an OTC token. Registered devices are
kept in a local list; one of them is current and is used by every command
unless --device-index selects another.

If no command is specified, the status of the current device is shown.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupApp(cmd)
	},
	RunE: runStatus,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/ogctl/config.yaml)")
	rootCmd.PersistentFlags().IntVar(&deviceIndex, "device-index", -1, "Registered device to use (default: the current device)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if outputFormat == "json" {
			_ = printJSON(version.Get())
			return
		}
		fmt.Println(version.Full())
	},
}
