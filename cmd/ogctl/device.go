package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/discovery"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/registry"
	"github.com/ogctl/ogctl/internal/ui"
)

// Device command flags
var (
	refreshNames   bool
	deviceKey      string
	promptKey      bool
	deviceName     string
	deviceInput    string
	imageURI       string
	clearImage     bool
	relayDomain    string
	relayPort      int
	addWithScan    bool
	makeCurrent    bool
	scanForDevices time.Duration
)

func init() {
	rootCmd.AddCommand(deviceCmd)

	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceUseCmd)
	deviceCmd.AddCommand(deviceSetCmd)
	deviceCmd.AddCommand(deviceRemoveCmd)
	deviceCmd.AddCommand(deviceUndoCmd)
	deviceCmd.AddCommand(deviceWipeCmd)

	deviceListCmd.Flags().BoolVar(&refreshNames, "refresh", false, "Read each controller's name and update the list")

	deviceAddCmd.Flags().StringVar(&deviceKey, "key", "", "Device key")
	deviceAddCmd.Flags().BoolVar(&promptKey, "prompt-key", false, "Prompt for the device key without echoing it")
	deviceAddCmd.Flags().StringVar(&deviceName, "name", "", "Display name")
	deviceAddCmd.Flags().BoolVar(&addWithScan, "scan", false, "Pick the controller from an mDNS scan")
	deviceAddCmd.Flags().DurationVar(&scanForDevices, "timeout", 0, "Scan duration with --scan (default from config)")
	deviceAddCmd.Flags().BoolVar(&makeCurrent, "use", false, "Make the new device current")

	deviceSetCmd.Flags().StringVar(&deviceInput, "input", "", "IP address or OpenThings Cloud token")
	deviceSetCmd.Flags().StringVar(&deviceKey, "key", "", "Device key")
	deviceSetCmd.Flags().BoolVar(&promptKey, "prompt-key", false, "Prompt for the device key without echoing it")
	deviceSetCmd.Flags().StringVar(&deviceName, "name", "", "Display name")
	deviceSetCmd.Flags().StringVar(&imageURI, "image", "", "Path or URI of a garage photo")
	deviceSetCmd.Flags().BoolVar(&clearImage, "clear-image", false, "Remove the stored image reference")
	deviceSetCmd.Flags().StringVar(&relayDomain, "relay-domain", "", "OpenThings Cloud host for this device")
	deviceSetCmd.Flags().IntVar(&relayPort, "relay-port", 0, "OpenThings Cloud port for this device")
}

// deviceCmd groups the local device list commands
var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage the registered devices",
	Long: `Manage the local list of controllers. One device is current and is used
by every command unless --device-index selects another.`,
}

type deviceJSON struct {
	Index   int    `json:"index"`
	Current bool   `json:"current"`
	URL     string `json:"url,omitempty"`
	registry.Device
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}

		if refreshNames {
			refreshDeviceNames(cmd.Context(), r)
		}

		current, devices := r.ListDevices()
		if outputFormat == "json" {
			list := make([]deviceJSON, len(devices))
			for i, d := range devices {
				if d.DeviceKey != "" {
					d.DeviceKey = "********"
				}
				list[i] = deviceJSON{Index: i, Current: i == current, URL: r.URL(i), Device: d}
			}
			return printJSON(list)
		}

		if len(devices) == 0 {
			out.PrintWarning("No devices registered",
				ui.Detail{Key: "Add one", Value: "ogctl device add <ip-address|OTC-token>"},
				ui.Detail{Key: "Or scan", Value: "ogctl device add --scan"})
			return nil
		}

		for i, d := range devices {
			marker := " "
			if i == current {
				marker = ui.CurrentMarker
			}
			if outputFormat == "compact" {
				out.Println(fmt.Sprintf("%s %d %s %s %s", marker, i, d.DisplayName(), d.ConnectionMethod, d.ConnectionInput))
				continue
			}
			out.Println(fmt.Sprintf("%s %d. %s", marker, i, ui.ResultValueStyle.Render(d.DisplayName())))
			out.Println(fmt.Sprintf("     %-10s %s", "Method:", d.ConnectionMethod))
			if url := r.URL(i); url != "" {
				out.Println(fmt.Sprintf("     %-10s %s", "URL:", logging.RedactURL(url)))
			} else {
				out.Println(fmt.Sprintf("     %-10s %s", "URL:", ui.MutedStyle.Render("not configured")))
			}
			if d.DeviceKey == "" {
				out.Println(fmt.Sprintf("     %-10s %s", "Key:", ui.MutedStyle.Render("not set")))
			}
		}
		return nil
	},
}

// refreshDeviceNames reads every reachable controller's name, the way the
// device list screen does, and stores names that changed.
func refreshDeviceNames(ctx context.Context, r *registry.Registry) {
	_, devices := r.ListDevices()
	for i, d := range devices {
		ep, err := r.Endpoint(i)
		if err != nil {
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, cfg.Client.Timeout)
		vars, err := controller.NewClient(ep, controller.WithTimeout(cfg.Client.Timeout)).GetVars(reqCtx)
		cancel()
		if err != nil {
			logging.Warn("Could not refresh device name", zap.Int("index", i), zap.Error(err))
			errOut.Println(fmt.Sprintf("%s %s: %s", ui.WarningMarker, d.DisplayName(), controller.GetShortErrorMessage(err)))
			continue
		}
		if vars.Name != "" && vars.Name != d.Name {
			name := vars.Name
			r.SetDeviceParam(i, registry.DevicePatch{Name: &name})
		}
	}
}

var deviceAddCmd = &cobra.Command{
	Use:   "add [ip-address|OTC-token]",
	Short: "Register a controller",
	Long: `Register a controller by its IP address or OpenThings Cloud token, or pick
one from an mDNS scan with --scan. The first device registered becomes current.`,
	Example: `  # LAN controller
  ogctl device add 192.168.1.40 --name Garage --prompt-key

  # Through OpenThings Cloud
  ogctl device add OTC-0123456789abcdef0123456789abcdef --key opendoor

  # Pick from the network
  ogctl device add --scan --use`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDeviceAdd,
}

func runDeviceAdd(cmd *cobra.Command, args []string) error {
	r, err := openRegistry()
	if err != nil {
		return err
	}

	var d registry.Device
	switch {
	case len(args) == 1:
		d.ConnectionInput = strings.TrimSpace(args[0])
	case addWithScan:
		found, err := pickScannedDevice(cmd.Context())
		if err != nil {
			return fail("No controller selected", err)
		}
		if found == nil {
			return nil
		}
		d.ConnectionInput = found.Input()
		d.Name = found.DefaultName()
	default:
		return fmt.Errorf("give an IP address or OTC token, or use --scan")
	}

	d.ConnectionMethod = connection.Interpret(d.ConnectionInput)
	if d.ConnectionMethod == connection.None {
		return fail("Device not added", controller.NewValidationError(
			fmt.Sprintf("%q is neither an IPv4 address nor an OpenThings Cloud token", d.ConnectionInput)))
	}
	if deviceName != "" {
		d.Name = deviceName
	}
	key, err := keyFromFlags(cmd)
	if err != nil {
		return err
	}
	if key != nil {
		d.DeviceKey = *key
	}

	_, before := r.ListDevices()
	if !r.AddDevice(d) {
		return fail("Device not added", fmt.Errorf("the device list could not be saved"))
	}
	index := len(before)
	if makeCurrent || index == 0 {
		r.SetCurrentIndex(index)
	}

	logging.Info("Device added", zap.Int("index", index), zap.String("method", d.ConnectionMethod.String()))
	out.PrintSuccess("Device added",
		ui.Detail{Key: "Index", Value: strconv.Itoa(index)},
		ui.Detail{Key: "Name", Value: d.DisplayName()},
		ui.Detail{Key: "Method", Value: d.ConnectionMethod.String()},
		ui.Detail{Key: "URL", Value: logging.RedactURL(r.URL(index))},
	)
	return nil
}

// pickScannedDevice scans and lets the user choose. It returns nil, nil when
// the user cancels.
func pickScannedDevice(ctx context.Context) (*discovery.Device, error) {
	timeout := scanForDevices
	if timeout <= 0 {
		timeout = cfg.Discovery.Timeout
	}

	errOut.Println(fmt.Sprintf("Scanning for controllers (%s)...", timeout))
	scanner := discovery.NewScanner()
	scanner.Timeout = timeout
	devices, err := scanner.ScanForDevicesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	switch len(devices) {
	case 0:
		return nil, controller.NewValidationError("no controllers found; add one by address instead")
	case 1:
		errOut.Println("Found " + devices[0].String())
		return devices[0], nil
	}

	for i, d := range devices {
		errOut.Println(fmt.Sprintf("  %d. %s", i+1, d))
	}
	if assumeYes {
		return nil, controller.NewValidationError("several controllers found; add one by address instead")
	}
	answer, err := prompt.Line(fmt.Sprintf("Controller [1-%d]: ", len(devices)))
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(devices) {
		return nil, controller.NewValidationError(fmt.Sprintf("%q is not a listed controller", answer))
	}
	return devices[n-1], nil
}

// keyFromFlags returns the device key from --key or --prompt-key, or nil when
// neither was given.
func keyFromFlags(cmd *cobra.Command) (*string, error) {
	if promptKey {
		key, err := prompt.Secret("Device key: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read device key: %w", err)
		}
		return &key, nil
	}
	if cmd.Flags().Changed("key") {
		key := deviceKey
		return &key, nil
	}
	return nil, nil
}

var deviceUseCmd = &cobra.Command{
	Use:   "use <index>",
	Short: "Make a registered device current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		index, d, err := deviceArg(r, args[0])
		if err != nil {
			return err
		}
		if !r.SetCurrentIndex(index) {
			return fail("Device not selected", fmt.Errorf("the current device could not be saved"))
		}
		out.PrintSuccess("Current device", ui.Detail{Key: "Index", Value: strconv.Itoa(index)}, ui.Detail{Key: "Name", Value: d.DisplayName()})
		return nil
	},
}

func deviceArg(r *registry.Registry, arg string) (int, *registry.Device, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid device index %q", arg)
	}
	d, ok := r.Device(index)
	if !ok {
		return 0, nil, fmt.Errorf("no device at index %d (see 'ogctl device list')", index)
	}
	return index, d, nil
}

var deviceSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the connection settings of a device",
	Long: `Change the settings of the current device, or of --device-index. With no
registered device, set creates one.

Changing --input re-derives the connection method.`,
	Example: `  # Controller moved to a new address
  ogctl device set --input 192.168.1.52

  # Wrong device key
  ogctl device set --prompt-key

  # Self-hosted relay for device 1
  ogctl device set --device-index 1 --relay-domain relay.example.com --relay-port 8443`,
	Args: cobra.NoArgs,
	RunE: runDeviceSet,
}

func runDeviceSet(cmd *cobra.Command, args []string) error {
	r, err := openRegistry()
	if err != nil {
		return err
	}

	var patch registry.DevicePatch
	flags := cmd.Flags()
	if flags.Changed("input") {
		input := strings.TrimSpace(deviceInput)
		if connection.Interpret(input) == connection.None {
			return fail("Device not changed", controller.NewValidationError(
				fmt.Sprintf("%q is neither an IPv4 address nor an OpenThings Cloud token", input)))
		}
		patch.ConnectionInput = &input
	}
	if flags.Changed("name") {
		patch.Name = &deviceName
	}
	if flags.Changed("image") {
		patch.Image = &registry.Image{URI: imageURI}
	}
	patch.ClearImage = clearImage
	if flags.Changed("relay-domain") {
		patch.RelayDomain = &relayDomain
	}
	if flags.Changed("relay-port") {
		if relayPort < 0 || relayPort > 65535 {
			return fail("Device not changed", controller.NewValidationError("relay port must be between 0 and 65535"))
		}
		patch.RelayPort = &relayPort
	}
	key, err := keyFromFlags(cmd)
	if err != nil {
		return err
	}
	patch.DeviceKey = key

	if patch.Empty() {
		return fmt.Errorf("nothing to change (see 'ogctl device set --help')")
	}

	var ok bool
	if deviceIndex >= 0 {
		ok = r.SetDeviceParam(deviceIndex, patch)
	} else {
		ok = r.SetCurrentDeviceParam(patch)
	}
	if !ok {
		return fail("Device not changed", fmt.Errorf("no device at index %d", deviceIndex))
	}

	d := selectedDevice(r)
	if d == nil {
		return nil
	}
	out.PrintSuccess("Device updated",
		ui.Detail{Key: "Name", Value: d.DisplayName()},
		ui.Detail{Key: "Method", Value: d.ConnectionMethod.String()},
		ui.Detail{Key: "URL", Value: logging.RedactURL(r.URL(selectedIndex()...))},
	)
	return nil
}

var deviceRemoveCmd = &cobra.Command{
	Use:   "remove <index>",
	Short: "Remove a registered device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		index, d, err := deviceArg(r, args[0])
		if err != nil {
			return err
		}
		if !confirm(fmt.Sprintf("Remove %s?", d.DisplayName()), "It can be restored with 'ogctl device undo'") {
			return nil
		}
		if _, ok := r.RemoveDevice(index); !ok {
			return fail("Device not removed", fmt.Errorf("the device list could not be saved"))
		}
		res := ui.NewSuccessResult("Device removed", ui.Detail{Key: "Name", Value: d.DisplayName()}).
			SetWidth(out.Width()).
			SetAction("ogctl device undo")
		out.Println(res.Render())
		return nil
	},
}

var deviceUndoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Restore the most recently removed device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		d, ok := r.UndoRemove()
		if !ok {
			out.PrintWarning("Nothing to restore")
			return nil
		}
		_, devices := r.ListDevices()
		out.PrintSuccess("Device restored",
			ui.Detail{Key: "Index", Value: strconv.Itoa(len(devices) - 1)},
			ui.Detail{Key: "Name", Value: d.DisplayName()})
		return nil
	},
}

var deviceWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every registered device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		if !confirm("Delete all local device data?", "Every registered device and its key is removed", "This cannot be undone") {
			return nil
		}
		if !r.Wipe() {
			return fail("Wipe failed", fmt.Errorf("the device list could not be cleared"))
		}
		out.PrintSuccess("All device data deleted")
		return nil
	},
}
