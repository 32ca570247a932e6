package controller

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// cloudFirmware matches firmware with OpenThings Cloud support.
const cloudFirmware = ">= 1.2.0"

// CloudOptionKeys are the /co keys that configure the OpenThings Cloud
// connection.
var CloudOptionKeys = []string{"auth", "bdmn", "bprt"}

// FirmwareVersion decodes the controller's fwv field. Each decimal digit is a
// version component: 123 is 1.2.3.
func FirmwareVersion(fwv int) (*semver.Version, error) {
	if fwv < 100 || fwv > 999 {
		return nil, NewValidationError(fmt.Sprintf("firmware version %d out of range", fwv))
	}
	return semver.NewVersion(fmt.Sprintf("%d.%d.%d", fwv/100, fwv/10%10, fwv%10))
}

// FirmwareString returns fwv formatted as "1.2.3", or the raw number when it
// cannot be decoded.
func FirmwareString(fwv int) string {
	v, err := FirmwareVersion(fwv)
	if err != nil {
		return fmt.Sprintf("%d", fwv)
	}
	return v.String()
}

// FirmwareSatisfies reports whether fwv matches a semver constraint such as
// ">= 1.1.0".
func FirmwareSatisfies(fwv int, constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid firmware constraint %q: %w", constraint, err)
	}
	v, err := FirmwareVersion(fwv)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

// SupportsCloud reports whether the firmware can connect to OpenThings Cloud.
func SupportsCloud(fwv int) bool {
	ok, err := FirmwareSatisfies(fwv, cloudFirmware)
	return err == nil && ok
}

func cloudKeysIn(p *Params) []string {
	var keys []string
	for _, k := range CloudOptionKeys {
		if _, ok := p.Get(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// UsesCloudOptions reports whether p sets any of CloudOptionKeys.
func UsesCloudOptions(p *Params) bool {
	return len(cloudKeysIn(p)) > 0
}

// CheckCloudOptions returns an unsupported error when p sets cloud options
// on firmware older than 1.2.0. Params without cloud keys always pass.
func CheckCloudOptions(fwv int, p *Params) error {
	keys := cloudKeysIn(p)
	if len(keys) == 0 || SupportsCloud(fwv) {
		return nil
	}
	return &DeviceError{
		Type: ErrTypeUnsupported,
		Message: fmt.Sprintf("firmware %s does not support OpenThings Cloud (%s need %s)",
			FirmwareString(fwv), strings.Join(keys, ", "), cloudFirmware),
		Err: ErrUnsupported,
	}
}
