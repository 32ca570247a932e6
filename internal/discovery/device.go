package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Device is an OpenGarage controller found on the local network.
type Device struct {
	// ChipID is the last six hex digits of the MAC, upper-cased (e.g. "A1B2C3").
	ChipID string

	// Hostname is the mDNS hostname (e.g. "OG_A1B2C3.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available.
	IP string

	Port int

	// Metadata holds the TXT record key/value pairs.
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable description of the device.
func (d *Device) String() string {
	return fmt.Sprintf("OpenGarage %s (%s) at %s", d.ChipID, strings.TrimSuffix(d.Hostname, "."), d.Input())
}

// Input returns the value to store as a registry connection input: the
// address alone on port 80, otherwise host:port.
func (d *Device) Input() string {
	if d.Port == 0 || d.Port == DefaultPort {
		if strings.Contains(d.IP, ":") {
			return "[" + d.IP + "]"
		}
		return d.IP
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// BaseURL returns the HTTP base URL for the device.
func (d *Device) BaseURL() string {
	return "http://" + d.Input()
}

// DefaultName is the name the firmware gives an unconfigured controller.
func (d *Device) DefaultName() string {
	return "OG_" + d.ChipID
}

// GetMetadata retrieves a TXT value by key, or "" when absent.
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
