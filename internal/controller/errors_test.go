package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
	"testing"
)

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantType    ErrorType
		wantSubtype NetworkErrorSubtype
		retryable   bool
	}{
		{"timeout", os.ErrDeadlineExceeded, ErrTypeTimeout, NetworkErrorTimeout, true},
		{"dns", &net.DNSError{Name: "garage.local", Err: "no such host"}, ErrTypeDNS, NetworkErrorDNS, false},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ErrTypeConnectionRefused, NetworkErrorConnectionRefused, true},
		{"host unreachable", &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, ErrTypeNetwork, NetworkErrorHostUnreachable, true},
		{"net unreachable", &net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, ErrTypeNetwork, NetworkErrorNetworkUnreachable, true},
		{"wrapped in url.Error", &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, ErrTypeConnectionRefused, NetworkErrorConnectionRefused, true},
		{"generic", errors.New("boom"), ErrTypeNetwork, NetworkErrorGeneral, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(tt.err, "192.168.1.50")
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.NetworkSubtype != tt.wantSubtype {
				t.Errorf("NetworkSubtype = %v, want %v", got.NetworkSubtype, tt.wantSubtype)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.Host != "192.168.1.50" {
				t.Errorf("Host = %q", got.Host)
			}
		})
	}

	if ClassifyNetworkError(nil, "") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestDeviceError_Wrapping(t *testing.T) {
	inner := errors.New("socket closed")
	err := fmt.Errorf("status: %w", NewNetworkError("request failed", "h", inner))

	if !errors.Is(err, inner) {
		t.Error("errors.Is should reach the cause")
	}
	if !IsNetworkError(err) {
		t.Error("IsNetworkError should see through fmt wrapping")
	}
	if !strings.Contains(err.Error(), "socket closed") {
		t.Errorf("Error() = %s", err)
	}
}

func TestNewHTTPError_Retryable(t *testing.T) {
	if NewHTTPError(404, "x").Retryable {
		t.Error("4xx should not be retryable")
	}
	if !NewHTTPError(502, "x").Retryable {
		t.Error("5xx should be retryable")
	}
}

func TestNewUnsupportedError(t *testing.T) {
	err := NewUnsupportedError("reading the log")
	if !errors.Is(err, ErrUnsupported) {
		t.Error("should wrap ErrUnsupported")
	}
	if IsRetryable(err) {
		t.Error("unsupported should not be retryable")
	}
}

func TestPredicates_NonDeviceError(t *testing.T) {
	err := context.Canceled
	if IsNetworkError(err) || IsAuthError(err) || IsHTTPError(err) || IsParseError(err) ||
		IsValidationError(err) || IsProtocolError(err) || IsRetryable(err) {
		t.Error("predicates should be false for foreign errors")
	}
	if _, ok := OutcomeOf(err); ok {
		t.Error("OutcomeOf should be false for foreign errors")
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no endpoint", ErrNoEndpoint, "ogctl device add"},
		{"timeout", ClassifyNetworkError(os.ErrDeadlineExceeded, ""), "did not respond in time"},
		{"auth", InterpretResult(ResultJSON{Result: 2}).Err(), "device key"},
		{"relay", InterpretResult(ResultJSON{Message: "offline"}).Err(), "cloud relay"},
		{"unsupported", NewUnsupportedError("x"), "OpenThings Cloud"},
		{"host unreachable", ClassifyNetworkError(&net.OpError{Err: syscall.EHOSTUNREACH}, "10.0.0.9"), "ping 10.0.0.9"},
		{"server error", NewHTTPError(503, "x"), "HTTP 503"},
		{"foreign", errors.New("x"), "unexpected error"},
	}
	for _, tt := range tests {
		if got := GetTroubleshootingHint(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("%s: hint %q should contain %q", tt.name, got, tt.want)
		}
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNoEndpoint, "No device configured"},
		{NewHTTPError(500, "x"), "Controller error (HTTP 500)"},
		{InterpretResult(ResultJSON{Result: 3}).Err(), "Key Mismatch"},
		{InterpretResult(ResultJSON{Result: 17, Item: "dth"}).Err(), "Out of Range"},
		{NewValidationError("bad value"), "bad value"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := GetShortErrorMessage(tt.err); got != tt.want {
			t.Errorf("GetShortErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestSuggestsSettings(t *testing.T) {
	if !SuggestsSettings(ErrNoEndpoint) {
		t.Error("missing endpoint should suggest settings")
	}
	if !SuggestsSettings(InterpretResult(ResultJSON{Result: 2}).Err()) {
		t.Error("bad key should suggest settings")
	}
	if SuggestsSettings(NewValidationError("x")) {
		t.Error("validation errors should not suggest settings")
	}
	if SuggestsSettings(errors.New("x")) {
		t.Error("foreign errors should not suggest settings")
	}
}

func TestErrorType_String(t *testing.T) {
	if ErrTypeProtocol.String() != "Controller Error" {
		t.Errorf("ErrTypeProtocol.String() = %s", ErrTypeProtocol)
	}
	if ErrorType(99).String() != "ErrorType(99)" {
		t.Errorf("unknown type = %s", ErrorType(99))
	}
}
