// Package controller talks to an OpenGarage controller over its HTTP API.
//
// The controller exposes a small set of GET endpoints. Reads return JSON
// documents; writes take their arguments in the query string and answer with a
// result code:
//
//	/jc                      live variables (door, distance, vehicle, ...)
//	/cc?dkey=...&open=1      change variables / issue a command
//	/jo                      persisted options
//	/co?dkey=...&name=...    change options
//	/jl                      event log
//	/clearlog?dkey=...       clear the event log
//	/resetall?dkey=...       factory reset
//
// The same endpoints are reachable through the OpenThings Cloud relay, whose
// base URL already carries the device token. Devices connected through the
// legacy Blynk relay are remapped onto Blynk virtual pins; operations Blynk
// cannot express fail with ErrUnsupported.
//
// # Result Codes
//
// Write responses carry a numeric result which InterpretResult turns into an
// Outcome. Any result other than 1 is reported as a *DeviceError of type
// ErrTypeProtocol (or ErrTypeAuth for key problems) carrying that Outcome.
//
// # Usage Example
//
//	ep, err := reg.Endpoint()
//	if err != nil {
//		return err
//	}
//	client := controller.NewClient(ep)
//
//	vars, err := client.GetVars(ctx)
//	if err != nil {
//		fmt.Println(controller.GetTroubleshootingHint(err))
//		return err
//	}
//	fmt.Print(vars.FormatCompact())
//
//	params := controller.NewOptionParams()
//	_ = params.Set("name", "Garage")
//	_ = params.Set("dth", 25)
//	outcome, err := client.ChangeOptions(ctx, params)
//
// # Error Handling
//
// Transport failures are classified by ClassifyNetworkError. Use the IsXxx
// helpers or errors.As to inspect them, and GetShortErrorMessage or
// GetTroubleshootingHint to present them.
package controller
