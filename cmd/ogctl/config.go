package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ogctl/ogctl/internal/config"
	"github.com/ogctl/ogctl/internal/ui"
)

const annotationTolerateConfig = "tolerate-config-error"

var forceInit bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change ogctl's own settings",
	Long: `ogctl keeps its settings in a YAML file (see 'ogctl config path'). Devices
and their keys live in the device store, not in this file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.MQTT.Password != "" {
			shown.MQTT.Password = "********"
		}
		if outputFormat == "json" {
			return printJSON(shown)
		}
		data, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			out.Println(ui.MutedStyle.Render("# defaults (no file at " + configPath + ")"))
		}
		out.Println(strings.TrimRight(string(data), "\n"))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a config file with default values",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationTolerateConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !forceInit {
			return fail("Config already exists",
				fmt.Errorf("%s exists (use --force to overwrite)", configPath))
		}
		if err := config.Default().Save(configPath); err != nil {
			return fail("Could not write config", err)
		}
		out.PrintSuccess("Config written", ui.Detail{Key: "Path", Value: configPath})
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat == "json" {
			return printJSON(map[string]string{"path": configPath})
		}
		out.Println(configPath)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: "Change one setting and save the file. Keys:\n  " +
		strings.Join(config.SettableKeys(), "\n  "),
	Example: `  ogctl config set client.timeout 5s
  ogctl config set storage.backend sqlite
  ogctl config set mqtt.broker broker.local:1883`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := cfg.Set(key, value); err != nil {
			return fail("Invalid setting", err)
		}
		if err := cfg.Save(configPath); err != nil {
			return fail("Could not write config", err)
		}
		if key == "mqtt.password" {
			value = "********"
		}
		out.PrintSuccess("Setting saved",
			ui.Detail{Key: key, Value: value},
			ui.Detail{Key: "Path", Value: configPath})
		return nil
	},
}
