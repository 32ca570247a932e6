package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/discovery"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/mqttlink"
	"github.com/ogctl/ogctl/internal/server"
	"github.com/ogctl/ogctl/internal/tui"
	"github.com/ogctl/ogctl/internal/ui"
)

// Service command flags
var (
	scanTimeout   time.Duration
	pollInterval  time.Duration
	listenAddr    string
	readOnly      bool
	recordPath    string
	certPath      string
	keyPath       string
	mqttBroker    string
	mqttUser      string
	mqttTopic     string
	mqttPromptPwd bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mqttCmd)
	mqttCmd.AddCommand(mqttWatchCmd)
	mqttCmd.AddCommand(mqttSendCmd)

	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Scan duration (default from config)")

	dashboardCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Status refresh interval (default from config)")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config, "+server.DefaultListen+")")
	serveCmd.Flags().BoolVar(&readOnly, "read-only", false, "Reject commands and option changes")
	serveCmd.Flags().StringVar(&recordPath, "record", "", "Append every status update to this JSONL file")
	serveCmd.Flags().StringVar(&certPath, "cert", "", "TLS certificate file (TLS is enabled with --key)")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "TLS private key file")
	serveCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Status poll interval (default from config)")

	mqttCmd.PersistentFlags().StringVar(&mqttBroker, "broker", "", "Broker host[:port] (default: config, then the controller's mqtt option)")
	mqttCmd.PersistentFlags().StringVar(&mqttUser, "username", "", "Broker user name")
	mqttCmd.PersistentFlags().StringVar(&mqttTopic, "topic", "", "Controller topic (default: config, then the device name)")
	mqttCmd.PersistentFlags().BoolVar(&mqttPromptPwd, "prompt-password", false, "Prompt for the broker password")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// scanCmd discovers controllers on the local network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find OpenGarage controllers on the local network",
	Long: `Browse mDNS for OpenGarage controllers (hostnames OG_xxxxxx.local) and
list their addresses. Controllers already registered are marked.`,
	Example: `  # Scan for the configured time (5 seconds by default)
  ogctl scan

  # Longer scan on a busy network
  ogctl scan --timeout 15s`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	timeout := scanTimeout
	if timeout <= 0 {
		timeout = cfg.Discovery.Timeout
	}

	if outputFormat != "json" {
		errOut.Println(fmt.Sprintf("Scanning for OpenGarage controllers (%s)...", timeout))
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	scanner := discovery.NewScanner()
	scanner.Timeout = timeout
	devices, err := scanner.ScanForDevicesWithContext(ctx)
	if err != nil {
		return fail("Scan failed", err)
	}

	if outputFormat == "json" {
		return printJSON(devices)
	}

	if len(devices) == 0 {
		out.PrintWarning("No controllers found",
			ui.Detail{Key: "Check", Value: "the controller is powered on and joined to your WiFi"},
			ui.Detail{Key: "Note", Value: "mDNS does not cross subnets or VPNs"},
			ui.Detail{Key: "Instead", Value: "ogctl device add <ip-address>"})
		return nil
	}

	registered := map[string]int{}
	if r, err := openRegistry(); err == nil {
		_, list := r.ListDevices()
		for i, d := range list {
			registered[d.ConnectionInput] = i
		}
	}

	for i, d := range devices {
		line := fmt.Sprintf("%d. %s", i+1, d)
		if idx, ok := registered[d.Input()]; ok {
			line += ui.MutedStyle.Render(fmt.Sprintf("  (registered as %d)", idx))
		}
		out.Println(line)
		if outputFormat == "detailed" && len(d.Metadata) > 0 {
			out.Println(fmt.Sprintf("   Metadata: %v", d.Metadata))
		}
	}
	out.Newline()
	out.Println("Use 'ogctl device add <address>' or 'ogctl device add --scan' to register one.")
	return nil
}

// dashboardCmd launches the live dashboard
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live door status with controls",
	Long: `Open a full-screen dashboard that refreshes the current device's status
every few seconds and opens or closes the door with a key press. Refreshing
stops on the first error; press r to retry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		if deviceIndex >= 0 {
			if _, ok := r.Device(deviceIndex); !ok {
				return fmt.Errorf("no device at index %d (see 'ogctl device list')", deviceIndex)
			}
			r.SetCurrentIndex(deviceIndex)
		}

		interval := pollInterval
		if interval <= 0 {
			interval = cfg.Client.PollInterval
		}

		scanner := discovery.NewScanner()
		scanner.Timeout = cfg.Discovery.Timeout

		return tui.Run(tui.Config{
			Registry: r,
			NewController: func(ep connection.Endpoint) tui.Controller {
				return controller.NewClient(ep, controller.WithTimeout(cfg.Client.Timeout))
			},
			Scan:        scanner.ScanForDevicesWithContext,
			Interval:    interval,
			ScanTimeout: scanner.Timeout,
		})
	},
}

// serveCmd runs the local bridge
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bridge the current device to local HTTP and WebSocket clients",
	Long: `Poll the current device and serve its status over a small JSON API and a
WebSocket stream, so several local clients can share one controller.

Endpoints:
  GET    /health
  GET    /api/status          latest status (?live=1 reads the controller)
  GET    /api/options
  POST   /api/options         {"dth": 60, "name": "Garage"}
  GET    /api/logs
  DELETE /api/logs
  POST   /api/commands/{open|close|click|toggle|reboot|apmode}
  GET    /ws                  status stream`,
	Example: `  # Loopback only (default)
  ogctl serve

  # Whole LAN, status only, with TLS
  ogctl serve --listen :8470 --read-only --cert cert.pem --key key.pem`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --cert and --key must be provided together")
	}

	client, name, err := newClient()
	if err != nil {
		return fail("No device to serve", err)
	}

	bc := cfg.Bridge
	conf := &server.Config{
		Listen:       firstNonEmpty(listenAddr, bc.Listen),
		PollInterval: cfg.Client.PollInterval,
		CertPath:     firstNonEmpty(certPath, bc.CertPath),
		KeyPath:      firstNonEmpty(keyPath, bc.KeyPath),
		RecordPath:   firstNonEmpty(recordPath, bc.RecordPath),
		ReadOnly:     readOnly || bc.ReadOnly,
	}
	if pollInterval > 0 {
		conf.PollInterval = pollInterval
	}

	srv, err := server.New(conf, client)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	scheme := "http"
	if conf.CertPath != "" {
		scheme = "https"
	}
	out.PrintHeader(name, "ogctl serve",
		ui.Detail{Key: "Listen", Value: scheme + "://" + conf.Listen},
		ui.Detail{Key: "Poll", Value: conf.PollInterval.String()},
		ui.Detail{Key: "Read-only", Value: strconv.FormatBool(conf.ReadOnly)},
	)

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return srv.Start(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mqttCmd groups the MQTT commands
var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "Watch or control the door through the controller's MQTT broker",
	Long: `The controller publishes its door state to <name>/OUT/STATUS and
<name>/OUT/JSON and accepts commands on <name>/IN/STATE, where <name> is the
controller's device name. The broker must be configured on the controller
(ogctl options set mqtt=<host> mqpt=1883).`,
}

var mqttWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print door status messages until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		link, err := connectMQTT(ctx)
		if err != nil {
			return fail("MQTT connection failed", err)
		}
		defer link.Close()

		errOut.Println(fmt.Sprintf("Watching %s and %s (Ctrl+C to stop)", link.Topics().Status, link.Topics().JSON))
		err = link.Watch(ctx, func(s mqttlink.Status) {
			if outputFormat == "json" {
				_ = printJSON(s)
				return
			}
			out.Println(fmt.Sprintf("%s  %s", s.Received.Format("15:04:05"), ui.DoorStyle(s.IsOpen()).Render(s.String())))
		})
		if err != nil && ctx.Err() == nil {
			return fail("MQTT watch failed", err)
		}
		return nil
	},
}

var mqttSendCmd = &cobra.Command{
	Use:       "send <click|open|close>",
	Short:     "Send a door command over MQTT",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"click", "open", "close"},
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := controller.ParseCommand(args[0])
		if err != nil {
			return fail("Invalid command", err)
		}

		ctx, cancel := signalContext(cmd)
		defer cancel()

		link, err := connectMQTT(ctx)
		if err != nil {
			return fail("MQTT connection failed", err)
		}
		defer link.Close()

		if err := link.Send(ctx, command); err != nil {
			return fail("MQTT send failed", err)
		}
		out.PrintSuccess("Published "+string(command), ui.Detail{Key: "Topic", Value: link.Topics().State})
		return nil
	},
}

// connectMQTT resolves the broker and topic from flags, config and finally
// the controller itself, then connects.
func connectMQTT(ctx context.Context) (*mqttlink.Link, error) {
	mc := mqttlink.Config{
		Broker:   firstNonEmpty(mqttBroker, cfg.MQTT.Broker),
		Username: firstNonEmpty(mqttUser, cfg.MQTT.Username),
		Password: cfg.MQTT.Password,
		Topic:    firstNonEmpty(mqttTopic, cfg.MQTT.Topic),
	}

	if mc.Broker == "" || mc.Topic == "" {
		if err := fillMQTTFromController(ctx, &mc); err != nil {
			return nil, err
		}
	}

	if mqttPromptPwd {
		pwd, err := prompt.Secret("Broker password: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		mc.Password = pwd
	}

	link, err := mqttlink.New(mc)
	if err != nil {
		return nil, err
	}
	if err := link.Connect(ctx); err != nil {
		return nil, err
	}
	logging.Info("MQTT connected", zap.String("broker", mc.Broker), zap.String("topic", mc.Topic))
	return link, nil
}

func fillMQTTFromController(ctx context.Context, mc *mqttlink.Config) error {
	client, name, err := newClient()
	if err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, cfg.Client.Timeout)
	defer cancel()

	opts, err := client.GetOptions(reqCtx)
	if err != nil {
		return err
	}
	if mc.Broker == "" {
		if opts.MQTTServer == "" {
			return controller.NewValidationError("no MQTT broker configured (use --broker, or ogctl options set mqtt=<host>)")
		}
		mc.Broker = opts.MQTTServer
		if opts.MQTTPort > 0 {
			mc.Broker += ":" + strconv.Itoa(opts.MQTTPort)
		}
		if mc.Username == "" {
			mc.Username = opts.MQTTUser
		}
	}
	if mc.Topic == "" {
		mc.Topic = firstNonEmpty(opts.Name, name)
	}
	return nil
}
