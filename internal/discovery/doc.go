// Package discovery finds OpenGarage controllers on the local network using
// multicast DNS.
//
// The firmware registers an "_http._tcp" service under the hostname
// OG_XXXXXX.local, where XXXXXX is the last three bytes of the MAC address.
// Entries whose hostname does not follow that pattern are ignored.
//
// # Usage
//
//	devices, err := discovery.ScanForDevices(5 * time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d.ChipID, d.Input())
//	}
//
// Device.Input returns a value suitable for a registry connection input, so a
// discovered controller can be added with the IP connection method.
//
// # Network Requirements
//
// Multicast must be allowed on the interface (UDP port 5353) and the
// controller must be on the same network segment. A controller in AP mode is
// reachable at 192.168.4.1 and does not need discovery.
package discovery
