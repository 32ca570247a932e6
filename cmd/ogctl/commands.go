package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/ui"
)

// Controller command flags
var (
	verifyOptions bool
	clearLogs     bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	for _, c := range doorCommands() {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(apModeCmd)
	rootCmd.AddCommand(optionsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(resetCmd)

	optionsCmd.AddCommand(optionsShowCmd)
	optionsCmd.AddCommand(optionsSetCmd)
	optionsCmd.AddCommand(optionsFlagsCmd)
	optionsSetCmd.Flags().BoolVar(&verifyOptions, "verify", false, "Re-read the options until the controller reports the new values")

	logsCmd.Flags().BoolVar(&clearLogs, "clear", false, "Delete all log records on the controller")
}

// statusCmd shows the live door status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show door and vehicle status",
	Long: `Read the live status of the current device: door and vehicle state,
sensor distance, WiFi signal and firmware version.`,
	Example: `  # Current device
  ogctl status

  # Second registered device, one line
  ogctl status --device-index 1 --format compact`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, name, err := newClient()
	if err != nil {
		return fail("No device to read", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	vars, err := client.GetVars(ctx)
	if err != nil {
		return fail("Could not read status", err)
	}

	switch outputFormat {
	case "json":
		return printJSON(vars)
	case "compact":
		out.Println(vars.FormatCompact())
	default:
		out.PrintHeader(name, "ogctl status", ui.Detail{Key: "Connection", Value: client.Endpoint.Method.String()})
		out.Println(ui.DoorStyle(vars.IsOpen()).Render("Door: " + vars.DoorState()))
		out.Println(vars.FormatDetailed())
	}
	return nil
}

// toggleCmd opens a closed door or closes an open one
var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Open the door if closed, close it if open",
	Long: `Read the door state and send the opposite command. Unlike click, the
controller ignores the command if the door has moved in the meantime.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return fail("Toggle failed", err)
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		sent, o, err := client.Toggle(ctx)
		label := "Toggle"
		if sent != "" {
			label = commandTitle(sent)
		}
		return report(label, o, err)
	},
}

// doorCommands builds open, close and click, which differ only in the command
// sent.
func doorCommands() []*cobra.Command {
	specs := []struct {
		cmd   controller.Command
		short string
	}{
		{controller.CommandOpen, "Open the door (ignored if already open)"},
		{controller.CommandClose, "Close the door (ignored if already closed)"},
		{controller.CommandClick, "Press the door button once"},
	}

	cmds := make([]*cobra.Command, 0, len(specs))
	for _, s := range specs {
		command := s.cmd
		cmds = append(cmds, &cobra.Command{
			Use:   string(command),
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendCommand(cmd, command)
			},
		})
	}
	return cmds
}

func sendCommand(cmd *cobra.Command, command controller.Command) error {
	client, _, err := newClient()
	if err != nil {
		return fail(commandTitle(command)+" failed", err)
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	o, err := client.Send(ctx, command)
	return report(commandTitle(command), o, err)
}

func commandTitle(c controller.Command) string {
	switch c {
	case controller.CommandAPMode:
		return "AP mode"
	case "":
		return "Command"
	}
	s := string(c)
	return strings.ToUpper(s[:1]) + s[1:]
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Restart the controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm("Reboot the controller?", "The controller is unreachable for a few seconds") {
			return nil
		}
		return sendCommand(cmd, controller.CommandReboot)
	},
}

var apModeCmd = &cobra.Command{
	Use:   "apmode",
	Short: "Reset WiFi and restart the controller in access point mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm("Reset the controller's WiFi settings?",
			"The controller forgets its WiFi network and starts its own access point",
			"It will not be reachable at its current address until it is set up again") {
			return nil
		}
		return sendCommand(cmd, controller.CommandAPMode)
	},
}

// optionsCmd groups the controller option commands
var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show or change controller options",
}

var optionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show controller options",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, name, err := newClient()
		if err != nil {
			return fail("No device to read", err)
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		opts, err := client.GetOptions(ctx)
		if err != nil {
			return fail("Could not read options", err)
		}
		if outputFormat == "json" {
			return printJSON(opts)
		}
		if outputFormat != "compact" {
			out.PrintHeader(name, "ogctl options show")
		}
		out.Println(opts.FormatDetailed())
		return nil
	},
}

var optionsSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Change controller options",
	Long: `Change one or more controller options. Keys are the controller's option
names (dth, riv, name, mqtt, ...). Values are checked before anything is sent.

Changing the device key needs both nkey and ckey with the same value.`,
	Example: `  # Door threshold 60 cm, read every 4 seconds
  ogctl options set dth=60 riv=4

  # Rename and confirm the controller applied it
  ogctl options set name="Barn Door" --verify

  # Point the controller at an MQTT broker
  ogctl options set mqtt=192.168.1.10 mqpt=1883`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOptionsSet,
}

func runOptionsSet(cmd *cobra.Command, args []string) error {
	params := controller.NewOptionParams()
	if err := params.ParseAssignments(args); err != nil {
		return fail("Invalid option", err)
	}
	if errs := controller.ValidateParams(params); len(errs) > 0 {
		r := ui.NewFailureResult("Invalid options", nil, nil).SetWidth(errOut.Width())
		for _, e := range errs {
			r.AddDetail("Error", controller.GetShortErrorMessage(e))
		}
		errOut.Println(r.Render())
		return errReported
	}

	client, _, err := newClient()
	if err != nil {
		return fail("Options not changed", err)
	}

	if outputFormat != "json" {
		out.Println("Changing:\n" + params.FormatChanges())
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	if !cloudOptionsAllowed(ctx, client, params) {
		return nil
	}

	if !verifyOptions {
		o, err := client.ChangeOptions(ctx, params)
		return report("Options saved", o, err)
	}

	result := client.ChangeAndVerifyOptions(ctx, params, controller.DefaultVerificationOptions())
	if !result.Success {
		return fail("Options not verified", result.Error)
	}
	if outputFormat == "json" {
		return printJSON(result.Actual)
	}
	out.PrintSuccess("Options saved and verified",
		ui.Detail{Key: "Attempts", Value: strconv.Itoa(result.Attempts)})
	return nil
}

// cloudOptionsAllowed reads the firmware version when params touch the cloud
// settings and asks before sending them to firmware that predates cloud
// support.
func cloudOptionsAllowed(ctx context.Context, client *controller.Client, params *controller.Params) bool {
	if !controller.UsesCloudOptions(params) {
		return true
	}
	vars, err := client.GetVars(ctx)
	if err != nil {
		logging.Debug("Firmware check skipped", zap.Error(err))
		return true
	}
	if err := controller.CheckCloudOptions(vars.Firmware, params); err != nil {
		return confirm("Send cloud settings anyway?", controller.GetShortErrorMessage(err),
			"The controller may ignore them until its firmware is updated.")
	}
	return true
}

var optionsFlagsCmd = &cobra.Command{
	Use:   "flags <noto|ato|atob> [+name|-name|name]...",
	Short: "Show or change notification and automation flags",
	Long: `Flag options hold several on/off switches in one value:

  noto  notify on: open, close
  ato   when the door is left open: notify, close
  atob  after the configured hour: notify, close

+name sets a flag, -name clears it and a bare name toggles it. With no
changes the current flags are printed.`,
	Example: `  # Notify on open and close
  ogctl options flags noto +open +close

  # Stop auto-closing after hours
  ogctl options flags atob -close`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOptionsFlags,
}

func runOptionsFlags(cmd *cobra.Command, args []string) error {
	key := args[0]
	if controller.FlagNames(key) == nil {
		return fail("Invalid flag option", controller.NewValidationError(
			fmt.Sprintf("%q is not a flag option (want one of %s)", key, strings.Join(controller.FlagKeys(), ", "))))
	}

	client, _, err := newClient()
	if err != nil {
		return fail("No device to read", err)
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	opts, err := client.GetOptions(ctx)
	if err != nil {
		return fail("Could not read options", err)
	}
	raw, _ := opts.Lookup(key)
	n, _ := strconv.Atoi(raw)
	current := controller.Flags(n)

	if len(args) == 1 {
		out.Println(fmt.Sprintf("%s = %d (%s)", key, current, current.Describe(key)))
		return nil
	}

	updated, err := controller.ApplyFlagChanges(key, current, args[1:])
	if err != nil {
		return fail("Invalid flag", err)
	}
	if updated == current {
		out.Println(fmt.Sprintf("%s unchanged (%s)", key, current.Describe(key)))
		return nil
	}

	params := controller.NewOptionParams()
	if err := params.Set(key, updated); err != nil {
		return fail("Invalid flag", err)
	}
	logging.Debug("Changing flags", zap.String("key", key), zap.Int("from", int(current)), zap.Int("to", int(updated)))

	o, err := client.ChangeOptions(ctx, params)
	return report(fmt.Sprintf("%s: %s → %s", key, current.Describe(key), updated.Describe(key)), o, err)
}

// logsCmd shows or clears the controller's door log
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the door open/close log",
	Long: `Show the controller's door log, newest first, with the sensor distance
at each event. Times are shown in the local time zone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, name, err := newClient()
		if err != nil {
			return fail("No device to read", err)
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		if clearLogs {
			if !confirm("Delete all log records?", "This cannot be undone") {
				return nil
			}
			o, err := client.ClearLog(ctx)
			return report("Logs cleared", o, err)
		}

		logs, err := client.GetLog(ctx)
		if err != nil {
			return fail("Could not read logs", err)
		}
		if outputFormat == "json" {
			return printJSON(logs)
		}
		if outputFormat != "compact" {
			out.PrintHeader(name, "ogctl logs")
		}
		out.Println(logs.Format(time.Local))
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the controller's factory options",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		warnings := []string{
			"Every option, including the device key, returns to its factory value",
			"The log is cleared",
		}
		if !prompt.ConfirmTyped("Factory reset the controller?", warnings, "RESET") {
			out.Println("Cancelled.")
			return nil
		}

		client, _, err := newClient()
		if err != nil {
			return fail("Reset failed", err)
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		o, err := client.ResetAll(ctx)
		return report("Factory reset", o, err)
	},
}
