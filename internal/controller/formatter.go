package controller

import (
	"fmt"
	"strings"
	"time"
)

// Summary returns a one-line summary of the live state
func (v *Vars) Summary() string {
	return fmt.Sprintf("%s: door %s, vehicle %s, %d cm", nameOr(v.Name), strings.ToLower(v.DoorState()), strings.ToLower(v.VehicleState()), v.Distance)
}

// FormatCompact returns a compact multi-line format suitable for terminal display
func (v *Vars) FormatCompact() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Device:   %s\n", nameOr(v.Name)))
	b.WriteString(fmt.Sprintf("Door:     %s\n", v.DoorState()))
	b.WriteString(fmt.Sprintf("Vehicle:  %s\n", v.VehicleState()))
	b.WriteString(fmt.Sprintf("Distance: %d cm\n", v.Distance))

	return b.String()
}

// FormatDetailed returns every field of the live state
func (v *Vars) FormatDetailed() string {
	var b strings.Builder

	b.WriteString("=== Door Status ===\n")
	b.WriteString(v.FormatCompact())
	b.WriteString("\n")

	b.WriteString("=== Controller ===\n")
	if v.Firmware != 0 {
		b.WriteString(fmt.Sprintf("Firmware:   %s\n", FirmwareString(v.Firmware)))
	}
	if v.MAC != "" {
		b.WriteString(fmt.Sprintf("MAC:        %s\n", v.MAC))
	}
	if v.ChipID != 0 {
		b.WriteString(fmt.Sprintf("Chip ID:    %d\n", v.ChipID))
	}
	if v.RSSI != 0 {
		b.WriteString(fmt.Sprintf("WiFi RSSI:  %d dBm (%s)\n", v.RSSI, signalQuality(v.RSSI)))
	}
	b.WriteString(fmt.Sprintf("Read count: %d\n", v.ReadCount))

	return b.String()
}

func signalQuality(rssi int) string {
	switch {
	case rssi >= -55:
		return "excellent"
	case rssi >= -67:
		return "good"
	case rssi >= -80:
		return "fair"
	default:
		return "weak"
	}
}

func nameOr(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

var mountTypes = []string{"Ceiling", "Side", "Switch (low)", "Switch (high)"}

// FormatDetailed returns the options grouped the way the controller's
// settings page lays them out
func (o *Options) FormatDetailed() string {
	var b strings.Builder

	b.WriteString("=== Basic ===\n")
	b.WriteString(fmt.Sprintf("Name:               %s\n", nameOr(o.Name)))
	if o.Firmware != 0 {
		b.WriteString(fmt.Sprintf("Firmware:           %s\n", FirmwareString(o.Firmware)))
	}
	mount := fmt.Sprintf("%d", o.MountType)
	if o.MountType >= 0 && o.MountType < len(mountTypes) {
		mount = mountTypes[o.MountType]
	}
	b.WriteString(fmt.Sprintf("Sensor mount:       %s\n", mount))
	b.WriteString(fmt.Sprintf("Door threshold:     %d cm\n", o.DistanceThresh))
	b.WriteString(fmt.Sprintf("Vehicle threshold:  %d cm\n", o.VehicleThresh))
	b.WriteString(fmt.Sprintf("Read interval:      %d s\n", o.ReadInterval))
	b.WriteString(fmt.Sprintf("Click time:         %d ms\n", o.ClickDelay))
	b.WriteString(fmt.Sprintf("Alarm:              %s\n", alarmName(o.Alarm)))
	b.WriteString(fmt.Sprintf("Log size:           %d\n", o.LogSize))
	b.WriteString("\n")

	b.WriteString("=== Automation ===\n")
	b.WriteString(fmt.Sprintf("Notify on:          %s (noto=%d)\n", o.Notify().Describe("noto"), o.NotifyFlags))
	b.WriteString(fmt.Sprintf("Open longer than:   %d min -> %s (ato=%d)\n", o.AutoCloseMinutes, o.AutoClose().Describe("ato"), o.AutoCloseFlags))
	b.WriteString(fmt.Sprintf("Open after hour:    %d:00 -> %s (atob=%d)\n", o.AutoCloseHour, o.AutoCloseAfterHour().Describe("atob"), o.AutoCloseHrFlags))
	b.WriteString("\n")

	b.WriteString("=== Network ===\n")
	b.WriteString(fmt.Sprintf("SSID:               %s\n", o.SSID))
	b.WriteString(fmt.Sprintf("HTTP port:          %d\n", o.HTTPPort))
	if o.StaticIP == 1 {
		b.WriteString(fmt.Sprintf("Static IP:          %s gw %s mask %s\n", o.DeviceIP, o.GatewayIP, o.Subnet))
	} else {
		b.WriteString("Static IP:          off (DHCP)\n")
	}
	b.WriteString("\n")

	b.WriteString("=== Integrations ===\n")
	b.WriteString(fmt.Sprintf("Cloud token:        %s\n", maskSecret(o.Auth)))
	if o.BlynkDomain != "" {
		b.WriteString(fmt.Sprintf("Cloud server:       %s:%d\n", o.BlynkDomain, o.BlynkPort))
	}
	b.WriteString(fmt.Sprintf("IFTTT key:          %s\n", maskSecret(o.IFTTTKey)))
	if o.MQTTServer != "" {
		b.WriteString(fmt.Sprintf("MQTT broker:        %s:%d", o.MQTTServer, o.MQTTPort))
		if o.MQTTUser != "" {
			b.WriteString(fmt.Sprintf(" (user %s)", o.MQTTUser))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("MQTT broker:        (none)\n")
	}

	return b.String()
}

func alarmName(alm int) string {
	switch alm {
	case 0:
		return "off"
	case 1:
		return "5 seconds"
	case 2:
		return "10 seconds"
	default:
		return fmt.Sprintf("%d", alm)
	}
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 4:
		return "****"
	default:
		return s[:4] + strings.Repeat("*", 8)
	}
}

// Format renders the log newest first. Times are shown in loc (local time
// when nil).
func (l *LogData) Format(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("=== Log: %s ===\n", nameOr(l.Name)))

	records := l.Newest()
	if len(records) == 0 {
		b.WriteString("(no events)\n")
		return b.String()
	}

	for _, r := range records {
		ts := time.Unix(r.Timestamp, 0).In(loc).Format("2006-01-02 15:04:05")
		b.WriteString(fmt.Sprintf("%s  %-6s  %4d cm\n", ts, r.Event(), r.Distance))
	}
	return b.String()
}

// FormatChanges returns a listing of the parameters about to be written
func (p *Params) FormatChanges() string {
	var b strings.Builder

	b.WriteString("=== Changes ===\n")
	if p.Len() == 0 {
		b.WriteString("(no changes specified)\n")
		return b.String()
	}
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		if unverifiableKeys[key] || key == "auth" {
			value = maskSecret(value)
		}
		b.WriteString(fmt.Sprintf("  %-5s = %s\n", key, value))
	}
	return b.String()
}
