package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/config"
	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/kvstore"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/registry"
	"github.com/ogctl/ogctl/internal/ui"
)

// errReported marks an error whose box has already been printed.
var errReported = errors.New("reported")

// Shared state built once per invocation in PersistentPreRunE.
var (
	cfg    *config.Config
	store  kvstore.Store
	reg    *registry.Registry
	out    = ui.NewPrinter(os.Stdout)
	errOut = ui.NewPrinter(os.Stderr)
	prompt *ui.Prompter
)

func setupApp(cmd *cobra.Command) error {
	switch outputFormat {
	case "detailed", "compact", "json":
	default:
		return fmt.Errorf("invalid --format %q (use detailed, compact or json)", outputFormat)
	}

	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	configPath = path

	loaded, err := config.Load(path)
	if err != nil {
		// config init --force must still be able to replace a broken file.
		if cmd.Annotations[annotationTolerateConfig] == "" {
			return err
		}
		loaded = config.Default()
	}
	cfg = loaded

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}
	logging.Debug("Configuration loaded", zap.String("path", path), zap.String("storage", cfg.Storage.Backend))

	prompt = ui.NewPrompter(os.Stdin, os.Stderr, assumeYes)
	return nil
}

// openRegistry opens the device store on first use. Commands that never touch
// the device list (config, version) never create it.
func openRegistry() (*registry.Registry, error) {
	if reg != nil {
		return reg, nil
	}
	s, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open device storage: %w", err)
	}
	store = s

	relay := cfg.RelayDefaults()
	reg = registry.New(store,
		registry.WithNotifier(ui.NewNotifier(os.Stderr)),
		registry.WithRelayDefaults(relay.Domain, relay.Port),
	)
	return reg, nil
}

func closeApp() {
	if store != nil {
		if err := store.Close(); err != nil {
			logging.Warn("Failed to close device storage", zap.Error(err))
		}
		store = nil
	}
}

// selectedIndex returns the --device-index argument for registry lookups, or
// nothing for the current device.
func selectedIndex() []int {
	if deviceIndex >= 0 {
		return []int{deviceIndex}
	}
	return nil
}

// newClient builds an API client for the selected device.
func newClient() (*controller.Client, string, error) {
	r, err := openRegistry()
	if err != nil {
		return nil, "", err
	}

	ep, err := r.Endpoint(selectedIndex()...)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", controller.ErrNoEndpoint, err)
	}

	name := ""
	if d := selectedDevice(r); d != nil {
		name = d.DisplayName()
	}

	opts := []controller.ClientOption{controller.WithTimeout(cfg.Client.Timeout)}
	if cfg.Client.Retries > 0 {
		opts = append(opts, controller.WithRetries(cfg.Client.Retries))
	}
	return controller.NewClient(ep, opts...), name, nil
}

func selectedDevice(r *registry.Registry) *registry.Device {
	if deviceIndex >= 0 {
		d, _ := r.Device(deviceIndex)
		return d
	}
	_, d := r.Current()
	return d
}

// commandContext bounds a one-shot request by the configured timeout plus a
// margin for click delays and retries.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := cfg.Client.Timeout*time.Duration(cfg.Client.Retries+1) + 5*time.Second
	return context.WithTimeout(cmd.Context(), timeout)
}

// fail prints an error box and returns errReported so main exits non-zero
// without printing it again.
func fail(title string, err error) error {
	if outputFormat == "json" {
		_ = printJSONTo(os.Stderr, errorJSON(err))
		return errReported
	}
	if o, ok := controller.OutcomeOf(err); ok && o.Title != "" {
		title = o.Title
	}
	errOut.PrintError(title, err)
	return errReported
}

// report prints the result of a write command.
func report(action string, o controller.Outcome, err error) error {
	if err != nil {
		return fail(action+" failed", err)
	}
	if outputFormat == "json" {
		return printJSON(outcomeJSON(o))
	}
	out.PrintOutcome(action, o)
	return nil
}

type outcomeResponse struct {
	Success bool   `json:"success"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
	Item    string `json:"item,omitempty"`
}

func outcomeJSON(o controller.Outcome) outcomeResponse {
	return outcomeResponse{Success: o.Success, Title: o.Title, Message: o.Message, Code: o.Code, Item: o.Item}
}

type errorResponse struct {
	Error   string           `json:"error"`
	Hint    string           `json:"hint,omitempty"`
	Outcome *outcomeResponse `json:"outcome,omitempty"`
}

func errorJSON(err error) errorResponse {
	resp := errorResponse{
		Error: controller.GetShortErrorMessage(err),
		Hint:  controller.GetTroubleshootingHint(err),
	}
	if o, ok := controller.OutcomeOf(err); ok {
		oj := outcomeJSON(o)
		resp.Outcome = &oj
	}
	return resp
}

func printJSON(v any) error {
	return printJSONTo(os.Stdout, v)
}

func printJSONTo(f *os.File, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(f, string(data))
	return err
}

// confirm asks before a destructive action. Declining is not an error.
func confirm(title string, warnings ...string) bool {
	return prompt.Confirm(title, warnings...)
}
