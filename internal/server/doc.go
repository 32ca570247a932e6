// Package server exposes one controller on the local network as a small
// JSON API with a WebSocket status stream.
//
// The bridge polls /jc on a fixed interval and pushes each result to every
// connected WebSocket client, so dashboards and home-automation scripts
// share a single polling loop instead of each hitting the controller.
//
// # Endpoints
//
//	GET    /health                   liveness, version and client count
//	GET    /api/status[?live=1]      last polled status, or a fresh read
//	GET    /api/options              controller options (/jo)
//	POST   /api/options              change options from a JSON object (/co)
//	GET    /api/logs                 door event log (/jl)
//	DELETE /api/logs                 clear the event log
//	POST   /api/commands/{command}   click, open, close, reboot, apmode, toggle
//	GET    /ws                       status stream
//
// Errors are returned as {"error", "type", "hint", "outcome"} with a status
// derived from the controller error type: 400 for invalid input, 403 for a
// rejected device key, 422 for other controller result codes, 501 for
// operations the connection method cannot perform and 502 when the
// controller could not be reached.
//
// # Usage
//
//	srv, err := server.New(&server.Config{Listen: ":8470"}, client)
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// Start blocks until ctx is cancelled, then shuts the HTTP server down and
// disconnects WebSocket clients.
package server
