package discovery

import "testing"

func TestDevice_String(t *testing.T) {
	device := &Device{ChipID: "A1B2C3", Hostname: "OG_A1B2C3.local.", IP: "192.168.1.40", Port: 80}

	expected := "OpenGarage A1B2C3 (OG_A1B2C3.local) at 192.168.1.40"
	if device.String() != expected {
		t.Errorf("String() = %v, want %v", device.String(), expected)
	}
}

func TestDevice_Input(t *testing.T) {
	tests := []struct {
		name    string
		device  *Device
		input   string
		baseURL string
	}{
		{"standard port", &Device{IP: "192.168.1.40", Port: 80}, "192.168.1.40", "http://192.168.1.40"},
		{"zero port", &Device{IP: "10.0.0.5"}, "10.0.0.5", "http://10.0.0.5"},
		{"custom port", &Device{IP: "10.0.0.5", Port: 8080}, "10.0.0.5:8080", "http://10.0.0.5:8080"},
		{"ipv6", &Device{IP: "fe80::1", Port: 8080}, "[fe80::1]:8080", "http://[fe80::1]:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.Input(); got != tt.input {
				t.Errorf("Input() = %v, want %v", got, tt.input)
			}
			if got := tt.device.BaseURL(); got != tt.baseURL {
				t.Errorf("BaseURL() = %v, want %v", got, tt.baseURL)
			}
		})
	}
}

func TestDevice_DefaultName(t *testing.T) {
	if got := (&Device{ChipID: "A1B2C3"}).DefaultName(); got != "OG_A1B2C3" {
		t.Errorf("DefaultName() = %q", got)
	}
}

func TestDevice_GetMetadata(t *testing.T) {
	device := &Device{Metadata: map[string]string{"path": "/"}}

	if got := device.GetMetadata("path"); got != "/" {
		t.Errorf("GetMetadata(path) = %q", got)
	}
	if got := device.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q", got)
	}
	if got := (&Device{}).GetMetadata("anything"); got != "" {
		t.Errorf("GetMetadata() with nil map = %q", got)
	}
}
