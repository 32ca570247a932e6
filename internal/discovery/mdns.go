package discovery

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/logging"
)

const (
	// ServiceType is the mDNS service type the firmware registers.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second

	// QuickScanTimeout is used by QuickScan.
	QuickScanTimeout = 3 * time.Second

	// DefaultPort is the controller's HTTP port.
	DefaultPort = 80
)

// hostPattern matches controller hostnames (e.g. "OG_A1B2C3.local.")
var hostPattern = regexp.MustCompile(`^OG_([0-9A-Fa-f]{6})\.local\.?$`)

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices discovers all controllers on the local network.
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext discovers controllers until the scanner timeout
// or ctx ends. Devices are de-duplicated by chip ID and sorted.
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	collected := newCollector()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if device := parseServiceEntry(entry); device != nil {
				collected.add(device)
			}
		}
	}()

	logging.Debug("Browsing mDNS", zap.String("service", ServiceType), zap.Duration("timeout", s.Timeout))
	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// zeroconf closes entries once the browse context ends.
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	devices := collected.list()
	logging.Debug("mDNS browse finished", zap.Int("devices", len(devices)))
	return devices, nil
}

// WaitForDevice waits for the controller with the given chip ID.
func (s *Scanner) WaitForDevice(chipID string) (*Device, error) {
	return s.WaitForDeviceWithContext(context.Background(), chipID)
}

// WaitForDeviceWithContext waits for a specific controller with a custom
// context. The chip ID match is case-insensitive.
func (s *Scanner) WaitForDeviceWithContext(ctx context.Context, chipID string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Device, 1)
	want := strings.ToUpper(chipID)

	go func() {
		for entry := range entries {
			device := parseServiceEntry(entry)
			if device != nil && device.ChipID == want {
				select {
				case found <- device:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case device := <-found:
		return device, nil
	case <-ctx.Done():
		select {
		case device := <-found:
			return device, nil
		default:
		}
		return nil, fmt.Errorf("controller %s not found within %s", want, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf entry to a Device, or nil when the
// entry is not an OpenGarage controller.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil || entry.HostName == "" {
		return nil
	}

	matches := hostPattern.FindStringSubmatch(entry.HostName)
	if len(matches) < 2 {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		k, v, _ := strings.Cut(txt, "=")
		metadata[k] = v
	}

	return &Device{
		ChipID:       strings.ToUpper(matches[1]),
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// collector de-duplicates devices seen more than once during a browse.
type collector struct {
	mu      sync.Mutex
	devices map[string]*Device
}

func newCollector() *collector {
	return &collector{devices: make(map[string]*Device)}
}

func (c *collector) add(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.devices[d.ChipID]; !ok {
		c.devices[d.ChipID] = d
	}
}

func (c *collector) list() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChipID < out[j].ChipID })
	return out
}

// ScanForDevices is a convenience function to scan with a custom timeout
func ScanForDevices(timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices()
}

// QuickScan performs a scan with QuickScanTimeout.
func QuickScan() ([]*Device, error) {
	return ScanForDevices(QuickScanTimeout)
}

// FindDevice searches for a controller by chip ID with the default timeout.
func FindDevice(chipID string) (*Device, error) {
	return NewScanner().WaitForDevice(chipID)
}
