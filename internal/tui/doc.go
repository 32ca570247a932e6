// Package tui implements ogctl's full-screen dashboard.
//
// Built on Bubble Tea, it has three screens:
//   - Devices: the registered devices, with the current one marked
//   - Discovery: an mDNS scan for controllers, or manual address entry
//   - Dashboard: live door status for the current device with door controls
//
// The dashboard reads /jc immediately and then on a fixed interval (5 seconds
// by default) through the poller package, only while it is on screen. The
// first failed read stops polling and leaves the error, its troubleshooting
// hints and the settings command on screen until the user presses r.
//
// All screens share RenderApplicationContainer for the header, content and
// footer help layout.
//
// # Usage Example
//
//	err := tui.Run(tui.Config{
//	    Registry:      reg,
//	    NewController: func(ep connection.Endpoint) tui.Controller { return controller.NewClient(ep) },
//	    Scan:          scanner.ScanForDevicesWithContext,
//	})
package tui
