// Package config manages the ogctl preferences file.
//
// The file is YAML and lives in the platform configuration directory:
//   - Linux: $XDG_CONFIG_HOME/ogctl/config.yaml or $HOME/.config/ogctl/config.yaml
//   - macOS: $HOME/.config/ogctl/config.yaml
//   - Windows: %LOCALAPPDATA%\ogctl\config.yaml
//
// It selects the device store backend, the OpenThings Cloud relay host,
// request and polling timings, the MQTT broker and the local bridge address.
// The device list itself, including device keys, is kept in the store, not
// in this file.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	store, err := cfg.OpenStore()
//
// A missing file is not an error; Load returns Default(). Save writes to a
// temporary file and renames it into place.
package config
