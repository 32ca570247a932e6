package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name       string
		entry      *zeroconf.ServiceEntry
		wantNil    bool
		wantChipID string
		wantIP     string
		wantPort   int
	}{
		{
			name: "controller with IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "OG_A1B2C3.local.",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.40")},
			},
			wantChipID: "A1B2C3",
			wantIP:     "192.168.1.40",
			wantPort:   80,
		},
		{
			name: "lower-case chip id is normalised",
			entry: &zeroconf.ServiceEntry{
				HostName: "OG_0a1b2c.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantChipID: "0A1B2C",
			wantIP:     "10.0.0.5",
			wantPort:   80,
		},
		{
			name: "custom port",
			entry: &zeroconf.ServiceEntry{
				HostName: "OG_FFFFFF.local",
				Port:     8080,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.100")},
			},
			wantChipID: "FFFFFF",
			wantIP:     "192.168.1.100",
			wantPort:   8080,
		},
		{
			name: "no port defaults to 80",
			entry: &zeroconf.ServiceEntry{
				HostName: "OG_111111.local",
				AddrIPv4: []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantChipID: "111111",
			wantIP:     "172.16.0.1",
			wantPort:   80,
		},
		{
			name: "other http service",
			entry: &zeroconf.ServiceEntry{
				HostName: "printer.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "empty hostname",
			entry: &zeroconf.ServiceEntry{
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				HostName: "OG_A1B2C3.local",
				Port:     80,
			},
			wantNil: true,
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				HostName: "OG_222222.local",
				Port:     80,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			wantChipID: "222222",
			wantIP:     "fe80::1",
			wantPort:   80,
		},
		{
			name: "prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "OG_333333.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
			},
			wantChipID: "333333",
			wantIP:     "192.168.1.50",
			wantPort:   80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}

			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want device")
			}
			if device.ChipID != tt.wantChipID {
				t.Errorf("ChipID = %v, want %v", device.ChipID, tt.wantChipID)
			}
			if device.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", device.Port, tt.wantPort)
			}
			if device.Hostname != tt.entry.HostName {
				t.Errorf("Hostname = %v, want %v", device.Hostname, tt.entry.HostName)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}

	if parseServiceEntry(nil) != nil {
		t.Error("nil entry should be ignored")
	}
}

func TestParseServiceEntry_Metadata(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		HostName: "OG_A1B2C3.local",
		Port:     80,
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.40")},
		Text:     []string{"path=/", "flag", "fw=1.2.3"},
	}

	device := parseServiceEntry(entry)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	want := map[string]string{"path": "/", "flag": "", "fw": "1.2.3"}
	if len(device.Metadata) != len(want) {
		t.Errorf("Metadata has %d entries, want %d", len(device.Metadata), len(want))
	}
	for k, v := range want {
		if got, ok := device.Metadata[k]; !ok || got != v {
			t.Errorf("Metadata[%q] = %q, %v; want %q", k, got, ok, v)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestHostPattern(t *testing.T) {
	tests := []struct {
		hostname    string
		shouldMatch bool
		chipID      string
	}{
		{"OG_A1B2C3.local", true, "A1B2C3"},
		{"OG_A1B2C3.local.", true, "A1B2C3"},
		{"OG_abcdef.local", true, "abcdef"},
		{"og_A1B2C3.local", false, ""},
		{"OG_A1B2C.local", false, ""},
		{"OG_A1B2C3D.local", false, ""},
		{"OG_GGGGGG.local", false, ""},
		{"OG_A1B2C3", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			matches := hostPattern.FindStringSubmatch(tt.hostname)
			if tt.shouldMatch {
				if len(matches) < 2 {
					t.Errorf("hostPattern did not match %q", tt.hostname)
				} else if matches[1] != tt.chipID {
					t.Errorf("hostPattern matched %q with %q, want %q", tt.hostname, matches[1], tt.chipID)
				}
			} else if matches != nil {
				t.Errorf("hostPattern matched %q, want no match", tt.hostname)
			}
		})
	}
}

func TestCollector_Dedup(t *testing.T) {
	c := newCollector()
	first := &Device{ChipID: "BBBBBB", IP: "192.168.1.2"}
	c.add(first)
	c.add(&Device{ChipID: "BBBBBB", IP: "192.168.1.99"})
	c.add(&Device{ChipID: "AAAAAA", IP: "192.168.1.3"})

	list := c.list()
	if len(list) != 2 {
		t.Fatalf("list() = %d devices, want 2", len(list))
	}
	if list[0].ChipID != "AAAAAA" || list[1] != first {
		t.Errorf("list() = %v", list)
	}
}
