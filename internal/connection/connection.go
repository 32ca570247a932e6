// Package connection classifies a device's connection input and turns it into
// the base URL used for controller requests.
//
// Everything in this package is pure: no storage, no network, no logging.
package connection

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Method is the addressing scheme used to reach a controller.
type Method string

const (
	// None means the input could not be classified; no request can be issued.
	None Method = ""
	// IP is a direct LAN connection to the controller.
	IP Method = "IP"
	// OTC is the OpenThings Cloud relay, addressed by an "OTC-" token.
	OTC Method = "OTC"
	// Blynk is the legacy Blynk relay, addressed by a bare 32 character token.
	Blynk Method = "BLYNK"

	// legacyOTF is what older app builds stored for every non-IP input.
	legacyOTF = "OTF"
)

const (
	// NoDevices is returned instead of a URL when the registry holds no devices.
	NoDevices = "no devices"

	// DefaultRelayDomain is the OpenThings Cloud forwarding host.
	DefaultRelayDomain = "cloud.openthings.io"

	// BlynkBaseURL is the Blynk cloud HTTP API root.
	BlynkBaseURL = "http://blynk-cloud.com"

	// OTCPrefix precedes every OpenThings Cloud token.
	OTCPrefix = "OTC-"
)

var (
	octet        = `(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)`
	ipv4Pattern  = regexp.MustCompile(`^(` + octet + `\.){3}` + octet + `$`)
	otcPattern   = regexp.MustCompile(`^OTC-\w{32}$`)
	blynkPattern = regexp.MustCompile(`^\w{32}$`)
)

// String returns a display name for the method.
func (m Method) String() string {
	if m == None {
		return "none"
	}
	return string(m)
}

// Valid reports whether m is one of the known methods (None included).
func (m Method) Valid() bool {
	switch m {
	case None, IP, OTC, Blynk:
		return true
	}
	return false
}

// UnmarshalJSON accepts the legacy "OTF" value and maps unknown strings to None.
func (m *Method) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("connection method: %w", err)
	}
	*m = ParseMethod(s)
	return nil
}

// ParseMethod converts a stored or user-supplied method name.
func ParseMethod(s string) Method {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IP":
		return IP
	case "OTC", legacyOTF:
		return OTC
	case "BLYNK":
		return Blynk
	default:
		return None
	}
}

// Interpret classifies raw connection input. Rules apply in order: dotted-quad
// IPv4, "OTC-" token, bare 32 character token, otherwise None.
func Interpret(input string) Method {
	switch {
	case ipv4Pattern.MatchString(input):
		return IP
	case otcPattern.MatchString(input):
		return OTC
	case blynkPattern.MatchString(input):
		return Blynk
	default:
		return None
	}
}

// Relay holds the OpenThings Cloud forwarding host. Port 0 and 443 are omitted
// from the URL.
type Relay struct {
	Domain string
	Port   int
}

// URL builds the request base for a device. It returns "" when the method is
// None or the input is empty.
func URL(method Method, input string, relay Relay) string {
	if input == "" {
		return ""
	}

	switch method {
	case IP:
		return "http://" + input
	case OTC:
		domain := relay.Domain
		if domain == "" {
			domain = DefaultRelayDomain
		}
		host := domain
		if relay.Port != 0 && relay.Port != 443 {
			host = domain + ":" + strconv.Itoa(relay.Port)
		}
		return "https://" + host + "/forward/v1/" + strings.TrimPrefix(input, OTCPrefix)
	case Blynk:
		return BlynkBaseURL + "/" + input
	default:
		return ""
	}
}

// Endpoint is everything the API client needs to talk to one controller.
type Endpoint struct {
	BaseURL   string
	Method    Method
	DeviceKey string
}

// Resolvable reports whether a request can be issued against e.
func (e Endpoint) Resolvable() bool {
	return e.BaseURL != "" && e.BaseURL != NoDevices && e.Method != None
}
