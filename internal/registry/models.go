package registry

import (
	"github.com/ogctl/ogctl/internal/connection"
)

// Device describes one locally registered garage controller.
type Device struct {
	ConnectionMethod connection.Method `json:"conMethod"`
	ConnectionInput  string            `json:"conInput"`
	DeviceKey        string            `json:"devKey,omitempty"`
	Name             string            `json:"name,omitempty"`
	Image            *Image            `json:"image,omitempty"`

	// OpenThings Cloud overrides; empty means the configured default relay.
	RelayDomain string `json:"otcDomain,omitempty"`
	RelayPort   int    `json:"otcPort,omitempty"`
}

// Image is a reference to a locally picked photo of the garage.
type Image struct {
	URI    string `json:"uri"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// DisplayName returns the name, falling back to the connection input.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.ConnectionInput != "" {
		return d.ConnectionInput
	}
	return "(unnamed device)"
}

// DevicePatch carries the fields to merge into a device. Nil fields are left
// untouched.
type DevicePatch struct {
	ConnectionMethod *connection.Method
	ConnectionInput  *string
	DeviceKey        *string
	Name             *string
	Image            *Image
	ClearImage       bool
	RelayDomain      *string
	RelayPort        *int
}

// Apply merges p into d. A patched ConnectionInput always re-derives the
// connection method, overriding any explicit ConnectionMethod in the patch.
func (p DevicePatch) Apply(d Device) Device {
	if p.ConnectionMethod != nil {
		d.ConnectionMethod = *p.ConnectionMethod
	}
	if p.ConnectionInput != nil {
		d.ConnectionInput = *p.ConnectionInput
		d.ConnectionMethod = connection.Interpret(*p.ConnectionInput)
	}
	if p.DeviceKey != nil {
		d.DeviceKey = *p.DeviceKey
	}
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Image != nil {
		img := *p.Image
		d.Image = &img
	}
	if p.ClearImage {
		d.Image = nil
	}
	if p.RelayDomain != nil {
		d.RelayDomain = *p.RelayDomain
	}
	if p.RelayPort != nil {
		d.RelayPort = *p.RelayPort
	}
	return d
}

// Empty reports whether the patch changes nothing.
func (p DevicePatch) Empty() bool {
	return p.ConnectionMethod == nil && p.ConnectionInput == nil && p.DeviceKey == nil &&
		p.Name == nil && p.Image == nil && !p.ClearImage && p.RelayDomain == nil && p.RelayPort == nil
}

func newDefaultDevice() Device {
	return Device{ConnectionMethod: connection.IP, ConnectionInput: ""}
}
