package controller

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/ogctl/ogctl/internal/urls"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (connection refused, timeout, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates the controller rejected the device key
	ErrTypeAuth
	// ErrTypeHTTP indicates an HTTP-level error (non-200 status code)
	ErrTypeHTTP
	// ErrTypeParse indicates a parsing error (malformed JSON, invalid response)
	ErrTypeParse
	// ErrTypeValidation indicates a validation error (invalid parameter)
	ErrTypeValidation
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeProtocol indicates the controller or relay answered with a failure result
	ErrTypeProtocol
	// ErrTypeUnsupported indicates the operation is not available for the connection method
	ErrTypeUnsupported
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

var (
	// ErrUnsupported is wrapped by every ErrTypeUnsupported error.
	ErrUnsupported = errors.New("operation not supported for this connection method")

	// ErrNoEndpoint is returned when a request is attempted without a
	// resolvable device URL.
	ErrNoEndpoint = errors.New("no device connection configured")
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Device Key Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeProtocol:
		return "Controller Error"
	case ErrTypeUnsupported:
		return "Unsupported"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred during controller communication
type DeviceError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Host           string              // Request host (for context)
	Outcome        *Outcome            // Controller result (protocol errors only)
	Retryable      bool                // Whether the error is retryable
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes an error and returns a more specific error type
func ClassifyNetworkError(err error, host string) *DeviceError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &DeviceError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Host:           host,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DeviceError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Host:           host,
			Retryable:      false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &DeviceError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Device refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Host:           host,
				Retryable:      true,
			}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Host:           host,
				Retryable:      true,
			}
		}
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Host:           host,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err, host)
	}

	return &DeviceError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Host:           host,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message, host string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, host)
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &DeviceError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Err:       err,
		Host:      host,
		Retryable: true,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeValidation,
		Message: message,
	}
}

// NewProtocolError wraps a failed Outcome. Device key problems are reported as
// ErrTypeAuth.
func NewProtocolError(o Outcome) *DeviceError {
	t := ErrTypeProtocol
	if o.Code == ResultUnauthorized || o.Code == ResultMismatch {
		t = ErrTypeAuth
	}
	return &DeviceError{
		Type:       t,
		Message:    o.String(),
		StatusCode: http.StatusOK,
		Outcome:    &o,
	}
}

// NewUnsupportedError reports that op cannot be performed over the current
// connection method.
func NewUnsupportedError(op string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeUnsupported,
		Message: op + " is not available through the Blynk relay",
		Err:     ErrUnsupported,
	}
}

func asDeviceError(err error) (*DeviceError, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS, etc.)
func IsNetworkError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeNetwork ||
			devErr.Type == ErrTypeTimeout ||
			devErr.Type == ErrTypeConnectionRefused ||
			devErr.Type == ErrTypeDNS
	}
	return false
}

// IsAuthError checks if the controller rejected the device key
func IsAuthError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeAuth
	}
	return false
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeHTTP
	}
	return false
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeParse
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeValidation
	}
	return false
}

// IsProtocolError checks if the controller answered with a failure result,
// key errors included
func IsProtocolError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeProtocol || devErr.Type == ErrTypeAuth
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Retryable
	}
	return false
}

// OutcomeOf returns the controller Outcome carried by err, if any.
func OutcomeOf(err error) (Outcome, bool) {
	if devErr, ok := asDeviceError(err); ok && devErr.Outcome != nil {
		return *devErr.Outcome, true
	}
	return Outcome{}, false
}

// SuggestsSettings reports whether the user should be pointed back at the
// device connection settings to recover from err.
func SuggestsSettings(err error) bool {
	if errors.Is(err, ErrNoEndpoint) {
		return true
	}
	devErr, ok := asDeviceError(err)
	if !ok {
		return false
	}
	switch devErr.Type {
	case ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS, ErrTypeAuth, ErrTypeParse:
		return true
	case ErrTypeProtocol:
		return devErr.Outcome != nil && devErr.Outcome.Title == TitleConnectionFailed
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	if errors.Is(err, ErrNoEndpoint) {
		return strings.Join([]string{
			"No device is configured.",
			"Add one with: ogctl device add <ip-address|OTC-token>",
		}, "\n")
	}

	devErr, ok := asDeviceError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The controller did not respond in time.",
			"Troubleshooting:",
			"  • Check that the controller is powered on",
			"  • Verify it is connected to your WiFi network",
			"  • Try increasing the timeout: ogctl config set client.timeout 20s",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The controller refused the connection.",
			"Troubleshooting:",
			"  • Check the HTTP port in the controller options (htp)",
			"  • The controller may be rebooting - wait a few seconds and retry",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the controller hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of a hostname",
			"  • For cloud access, check your internet connection",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"The controller rejected the device key.",
			"Troubleshooting:",
			"  • The factory default key is opendoor",
			"  • Update the stored key: ogctl device set --prompt-key",
			"  • See " + urls.DeviceKeyHelp,
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}

		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The controller is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the controller IP address is correct",
				"  • Check that you're on the same network as the controller",
				"  • Try pinging the controller: ping "+devErr.Host)

		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the controller's network.",
				"Troubleshooting:",
				"  • Check your network adapter settings",
				"  • Verify WiFi is enabled on your computer")

		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the controller is powered on",
				"  • Ensure you're connected to the correct network")
		}

		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if devErr.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The controller or relay returned an error (HTTP %d).", devErr.StatusCode),
				"Troubleshooting:",
				"  • Try rebooting the controller",
				"  • Check " + urls.FirmwareReleases + " for firmware updates",
			}, "\n")
		}
		return fmt.Sprintf("The controller returned HTTP error %d. Check the connection settings.", devErr.StatusCode)

	case ErrTypeParse:
		return strings.Join([]string{
			"Failed to parse the controller's response.",
			"The address may point at a different device.",
			"Troubleshooting:",
			"  • Check the address with: ogctl device list",
			"  • Run ogctl scan to find controllers on your network",
		}, "\n")

	case ErrTypeProtocol:
		if devErr.Outcome != nil && devErr.Outcome.Title == TitleConnectionFailed {
			return strings.Join([]string{
				"The cloud relay could not reach the controller.",
				"Troubleshooting:",
				"  • Check that the controller is online",
				"  • Verify the OTC token in the device settings",
			}, "\n")
		}
		return "The controller rejected the request. Check the values you sent."

	case ErrTypeUnsupported:
		return "Connect to the controller by IP address or OpenThings Cloud to use this feature."

	case ErrTypeValidation:
		return "The values are invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	if errors.Is(err, ErrNoEndpoint) {
		return "No device configured"
	}

	devErr, ok := asDeviceError(err)
	if !ok {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Controller not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Controller refused connection"
	case ErrTypeDNS:
		return "Cannot resolve controller hostname"
	case ErrTypeNetwork:
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Controller unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check WiFi connection"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Controller error (HTTP %d)", devErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse controller response"
	case ErrTypeAuth, ErrTypeProtocol:
		if devErr.Outcome != nil {
			return devErr.Outcome.Title
		}
		return devErr.Message
	default:
		return devErr.Message
	}
}
