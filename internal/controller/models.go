package controller

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Door states reported in Vars.Door.
const (
	DoorClosed = 0
	DoorOpen   = 1
)

// Vehicle states reported in Vars.Vehicle.
const (
	VehicleAbsent   = 0
	VehiclePresent  = 1
	VehicleUnknown  = 2
	VehicleDisabled = 3
)

// Vars is the live state returned by /jc.
type Vars struct {
	Distance  int    `json:"dist"`    // Sensor reading in cm
	Door      int    `json:"door"`    // 0 closed, 1 open
	Vehicle   int    `json:"vehicle"` // 0 absent, 1 present, 2 unknown, 3 disabled
	ReadCount int    `json:"rcnt"`    // Sensor read counter
	Firmware  int    `json:"fwv"`     // Firmware version, e.g. 123 for 1.2.3
	Name      string `json:"name"`
	MAC       string `json:"mac"`
	ChipID    int    `json:"cid"`
	RSSI      int    `json:"rssi"` // WiFi signal strength in dBm

	// Message is set by the cloud relay when the controller is unreachable.
	Message string `json:"message,omitempty"`
}

// IsOpen reports whether the door is open.
func (v *Vars) IsOpen() bool {
	return v.Door == DoorOpen
}

// DoorState returns "Open" or "Closed".
func (v *Vars) DoorState() string {
	if v.IsOpen() {
		return "Open"
	}
	return "Closed"
}

// VehicleState returns a display string for the vehicle sensor.
func (v *Vars) VehicleState() string {
	switch v.Vehicle {
	case VehicleAbsent:
		return "Absent"
	case VehiclePresent:
		return "Present"
	case VehicleDisabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// Options is the persisted controller configuration returned by /jo.
//
// Only keys in OptionKeys are modelled; Lookup gives access to the raw value
// of any key the controller returned.
type Options struct {
	Firmware         int    `json:"fwv"`
	MountType        int    `json:"mnt"`  // 0 ceiling, 1 side, 2 switch (low), 3 switch (high)
	DistanceThresh   int    `json:"dth"`  // Door threshold in cm
	VehicleThresh    int    `json:"vth"`  // Vehicle threshold in cm
	ReadInterval     int    `json:"riv"`  // Status check interval in seconds
	Alarm            int    `json:"alm"`  // 0 off, 1 5s, 2 10s
	LogSize          int    `json:"lsz"`  // Number of log records kept
	TempSensor       int    `json:"tsn"`  // Temperature/humidity sensor type
	HTTPPort         int    `json:"htp"`  // Controller HTTP port
	ClickDelay       int    `json:"cdt"`  // Relay click time in ms
	DistanceInterval int    `json:"dri"`  // Distance sensor read interval in ms
	SensorTimeout    int    `json:"sto"`  // 0 ignore, 1 cap
	NetworkMode      int    `json:"mod"`  // 0 AP, 1 STA
	AutoCloseMinutes int    `json:"ati"`  // Close if open longer than
	AutoCloseFlags   int    `json:"ato"`  // Flags: notify, close
	AutoCloseHour    int    `json:"atib"` // Close after this hour (0-23)
	AutoCloseHrFlags int    `json:"atob"` // Flags: notify, close
	NotifyFlags      int    `json:"noto"` // Flags: on open, on close
	StaticIP         int    `json:"usi"`  // 1 to use dvip/gwip/subn
	SSID             string `json:"ssid"`
	Auth             string `json:"auth"` // Blynk/OTC token
	BlynkDomain      string `json:"bdmn"`
	BlynkPort        int    `json:"bprt"`
	Name             string `json:"name"`
	IFTTTKey         string `json:"iftt"`
	MQTTServer       string `json:"mqtt"`
	MQTTPort         int    `json:"mqpt"`
	MQTTUser         string `json:"mqun"`
	MQTTPassword     string `json:"mqpw"`
	DeviceIP         string `json:"dvip"`
	GatewayIP        string `json:"gwip"`
	Subnet           string `json:"subn"`

	Message string `json:"message,omitempty"`

	raw map[string]json.RawMessage
}

// UnmarshalJSON decodes the modelled fields and keeps every raw value for
// Lookup.
func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Options(p)
	o.raw = raw
	return nil
}

// Lookup returns the controller's value for key rendered as a string, the
// same form Params uses.
func (o *Options) Lookup(key string) (string, bool) {
	if o.raw == nil {
		return "", false
	}
	v, ok := o.raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return string(v), true
}

// Notify returns the notification flags (noto).
func (o *Options) Notify() Flags { return Flags(o.NotifyFlags) }

// AutoClose returns the "open too long" automation flags (ato).
func (o *Options) AutoClose() Flags { return Flags(o.AutoCloseFlags) }

// AutoCloseAfterHour returns the "open after hour" automation flags (atob).
func (o *Options) AutoCloseAfterHour() Flags { return Flags(o.AutoCloseHrFlags) }

// ResultJSON is the response body of every write endpoint.
type ResultJSON struct {
	Result  int    `json:"result,omitempty"`
	Item    string `json:"item,omitempty"`
	Message string `json:"message,omitempty"`
}

// Log status values.
const (
	LogClosed = 0
	LogOpened = 1
)

// LogRecord is one door event. On the wire it is a [timestamp, status,
// distance] triple.
type LogRecord struct {
	Timestamp int64 // Unix seconds
	Status    int   // 0 closed, 1 opened
	Distance  int   // cm
}

// UnmarshalJSON decodes the wire triple.
func (r *LogRecord) UnmarshalJSON(data []byte) error {
	var triple []json.Number
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("log record: %w", err)
	}
	if len(triple) != 3 {
		return fmt.Errorf("log record: expected 3 values, got %d", len(triple))
	}
	ts, err := triple[0].Int64()
	if err != nil {
		return fmt.Errorf("log record timestamp: %w", err)
	}
	status, err := strconv.Atoi(triple[1].String())
	if err != nil {
		return fmt.Errorf("log record status: %w", err)
	}
	dist, err := strconv.Atoi(triple[2].String())
	if err != nil {
		return fmt.Errorf("log record distance: %w", err)
	}
	*r = LogRecord{Timestamp: ts, Status: status, Distance: dist}
	return nil
}

// MarshalJSON encodes the record as the wire triple.
func (r LogRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int64{r.Timestamp, int64(r.Status), int64(r.Distance)})
}

// Event returns "Opened" or "Closed".
func (r LogRecord) Event() string {
	if r.Status == LogOpened {
		return "Opened"
	}
	return "Closed"
}

// LogData is the event log returned by /jl.
type LogData struct {
	Name    string      `json:"name"`
	Time    int64       `json:"time"` // Controller clock, Unix seconds
	Records []LogRecord `json:"logs"`
	Message string      `json:"message,omitempty"`
}

// Newest returns the records sorted newest first. The receiver is unchanged.
func (l *LogData) Newest() []LogRecord {
	out := make([]LogRecord, len(l.Records))
	copy(out, l.Records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out
}

// Command is a one-shot action sent through /cc.
type Command string

const (
	CommandClick  Command = "click"
	CommandOpen   Command = "open"
	CommandClose  Command = "close"
	CommandReboot Command = "reboot"
	CommandAPMode Command = "apmode"
)

// ParseCommand accepts a command name in any case.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range VarCommandKeys {
		if string(c) == k {
			return c, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("unknown command %q (want one of %s)", s, strings.Join(VarCommandKeys, ", ")))
}
