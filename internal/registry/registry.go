package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/kvstore"
	"github.com/ogctl/ogctl/internal/logging"
)

// Storage keys. These match the keys used by the mobile app.
const (
	KeyDevices      = "devices"
	KeyCurrentIndex = "currIndex"
	KeyLastRemoved  = "lastRemoved"
)

var (
	// ErrNoDevices is returned by Endpoint when the registry is empty.
	ErrNoDevices = errors.New("no devices configured")

	// ErrUnresolvable is returned by Endpoint when the selected device has no
	// usable connection input.
	ErrUnresolvable = errors.New("device connection is not configured")
)

// Notifier surfaces non-fatal problems to the user.
type Notifier interface {
	Alert(title, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, message string)

// Alert implements Notifier.
func (f NotifierFunc) Alert(title, message string) { f(title, message) }

type nopNotifier struct{}

func (nopNotifier) Alert(string, string) {}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets where storage failures are reported.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithRelayDefaults sets the OpenThings Cloud host used for devices that do
// not override it.
func WithRelayDefaults(domain string, port int) Option {
	return func(r *Registry) {
		r.relay = connection.Relay{Domain: domain, Port: port}
	}
}

// Registry reads and writes the device list and current index.
type Registry struct {
	store    kvstore.Store
	notifier Notifier
	relay    connection.Relay
	mu       sync.Mutex
}

// New creates a registry over store.
func New(store kvstore.Store, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		notifier: nopNotifier{},
		relay:    connection.Relay{Domain: connection.DefaultRelayDomain},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) readFailed(op string, err error) {
	logging.LogStorageError(op, err)
	r.notifier.Alert("Error Reading Data", "There was an error reading data")
}

func (r *Registry) writeFailed(op string, err error) {
	logging.LogStorageError(op, err)
	r.notifier.Alert("Error Saving Data", "There was an error saving data")
}

// ListDevices returns the current index and the device list. When either value
// is missing the index is reset to 0 and an empty list is returned.
func (r *Registry) ListDevices() (int, []Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listDevices()
}

func (r *Registry) listDevices() (int, []Device) {
	rawIndex, hasIndex, err := r.store.Get(KeyCurrentIndex)
	if err != nil {
		r.readFailed("get "+KeyCurrentIndex, err)
		return 0, []Device{}
	}
	rawDevices, hasDevices, err := r.store.Get(KeyDevices)
	if err != nil {
		r.readFailed("get "+KeyDevices, err)
		return 0, []Device{}
	}

	if !hasIndex || !hasDevices {
		r.setCurrentIndex(0)
		return 0, []Device{}
	}

	var index int
	if err := json.Unmarshal([]byte(rawIndex), &index); err != nil {
		r.readFailed("decode "+KeyCurrentIndex, err)
		return 0, []Device{}
	}

	var devices []Device
	if err := json.Unmarshal([]byte(rawDevices), &devices); err != nil {
		r.readFailed("decode "+KeyDevices, err)
		return 0, []Device{}
	}
	if devices == nil {
		devices = []Device{}
	}

	return index, devices
}

// SetDevices overwrites the device list. If no index has been stored yet it is
// initialised to 0 in the same write.
func (r *Registry) SetDevices(devices []Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setDevices(devices, -1)
}

// setDevices writes the list and, when index >= 0, the index alongside it.
func (r *Registry) setDevices(devices []Device, index int) bool {
	if devices == nil {
		devices = []Device{}
	}
	data, err := json.Marshal(devices)
	if err != nil {
		r.writeFailed("encode "+KeyDevices, err)
		return false
	}

	entries := map[string]string{KeyDevices: string(data)}
	if index >= 0 {
		entries[KeyCurrentIndex] = strconv.Itoa(index)
	} else if _, ok, err := r.store.Get(KeyCurrentIndex); err == nil && !ok {
		entries[KeyCurrentIndex] = "0"
	}

	if err := r.store.SetMulti(entries); err != nil {
		r.writeFailed("set "+KeyDevices, err)
		return false
	}
	return true
}

// SetCurrentIndex overwrites the current index. Negative indices are rejected.
func (r *Registry) SetCurrentIndex(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setCurrentIndex(index)
}

func (r *Registry) setCurrentIndex(index int) bool {
	if index < 0 {
		logging.Warn("Rejected negative device index", zap.Int("index", index))
		return false
	}
	if err := r.store.Set(KeyCurrentIndex, strconv.Itoa(index)); err != nil {
		r.writeFailed("set "+KeyCurrentIndex, err)
		return false
	}
	return true
}

// SetCurrentDeviceParam merges patch into the current device. When the current
// index has no record yet (the add-device flow), a default IP record is
// appended first and the index is pointed at it.
func (r *Registry) SetCurrentDeviceParam(patch DevicePatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, devices := r.listDevices()
	updated := make([]Device, len(devices), len(devices)+1)
	copy(updated, devices)

	writeIndex := -1
	if index < 0 || index >= len(updated) {
		updated = append(updated, newDefaultDevice())
		index = len(updated) - 1
		writeIndex = index
	}

	updated[index] = patch.Apply(updated[index])

	logging.Debug("Updating current device",
		zap.Int("index", index),
		zap.String("method", updated[index].ConnectionMethod.String()),
	)

	return r.setDevices(updated, writeIndex)
}

// SetDeviceParam merges patch into the device at index.
func (r *Registry) SetDeviceParam(index int, patch DevicePatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, devices := r.listDevices()
	if index < 0 || index >= len(devices) {
		return false
	}
	devices[index] = patch.Apply(devices[index])
	return r.setDevices(devices, -1)
}

// RemoveDevice deletes the device at index and returns it. If it was the
// current device the index resets to 0. Removing an earlier device does not
// shift the index; an index left past the end of the list resets to 0. The
// removed record is kept under KeyLastRemoved for UndoRemove.
func (r *Registry) RemoveDevice(index int) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, devices := r.listDevices()
	if index < 0 || index >= len(devices) {
		return nil, false
	}

	removed := devices[index]
	remaining := append(devices[:index:index], devices[index+1:]...)

	newIndex := current
	if current == index || current >= len(remaining) {
		newIndex = 0
	}

	devData, err := json.Marshal(remaining)
	if err != nil {
		r.writeFailed("encode "+KeyDevices, err)
		return nil, false
	}
	removedData, err := json.Marshal(removed)
	if err != nil {
		r.writeFailed("encode "+KeyLastRemoved, err)
		return nil, false
	}

	entries := map[string]string{
		KeyDevices:     string(devData),
		KeyLastRemoved: string(removedData),
	}
	if newIndex != current {
		entries[KeyCurrentIndex] = strconv.Itoa(newIndex)
	}

	if err := r.store.SetMulti(entries); err != nil {
		logging.LogStorageError("remove device", err)
		r.notifier.Alert("Error Removing Data", "There was an error removing data")
		return nil, false
	}

	logging.Info("Removed device",
		zap.Int("index", index),
		zap.Int("current_index", newIndex),
	)
	return &removed, true
}

// AddDevice appends devices to the list. A record without a connection method
// has one derived from its input.
func (r *Registry) AddDevice(devices ...Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addDevice(devices...)
}

func (r *Registry) addDevice(devices ...Device) bool {
	_, existing := r.listDevices()
	for _, d := range devices {
		if d.ConnectionMethod == connection.None && d.ConnectionInput != "" {
			d.ConnectionMethod = connection.Interpret(d.ConnectionInput)
		}
		existing = append(existing, d)
	}
	return r.setDevices(existing, -1)
}

// UndoRemove restores the most recently removed device to the end of the list.
func (r *Registry) UndoRemove() (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok, err := r.store.Get(KeyLastRemoved)
	if err != nil {
		r.readFailed("get "+KeyLastRemoved, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var d Device
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		r.readFailed("decode "+KeyLastRemoved, err)
		return nil, false
	}

	if !r.addDevice(d) {
		return nil, false
	}
	if err := r.store.Delete(KeyLastRemoved); err != nil {
		logging.LogStorageError("delete "+KeyLastRemoved, err)
	}
	return &d, true
}

// Wipe removes every registry key from the store.
func (r *Registry) Wipe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(KeyDevices, KeyCurrentIndex, KeyLastRemoved); err != nil {
		r.writeFailed("wipe", err)
		return false
	}
	return true
}

// device resolves an optional index (defaulting to the current one).
func (r *Registry) device(index []int) (Device, int, bool) {
	r.mu.Lock()
	current, devices := r.listDevices()
	r.mu.Unlock()

	i := current
	if len(index) > 0 {
		i = index[0]
	}
	if i < 0 || i >= len(devices) {
		return Device{}, i, false
	}
	return devices[i], i, true
}

// Current returns the current index and a copy of the current device.
func (r *Registry) Current() (int, *Device) {
	d, i, ok := r.device(nil)
	if !ok {
		return i, nil
	}
	return i, &d
}

// Device returns a copy of the device at index.
func (r *Registry) Device(index int) (*Device, bool) {
	d, _, ok := r.device([]int{index})
	if !ok {
		return nil, false
	}
	return &d, true
}

// DeviceKey returns the device key of the given (or current) device, or "".
func (r *Registry) DeviceKey(index ...int) string {
	d, _, _ := r.device(index)
	return d.DeviceKey
}

// ConnectionInput returns the connection input of the given (or current) device.
func (r *Registry) ConnectionInput(index ...int) string {
	d, _, _ := r.device(index)
	return d.ConnectionInput
}

// ConnectionMethod returns the connection method of the given (or current) device.
func (r *Registry) ConnectionMethod(index ...int) connection.Method {
	d, _, _ := r.device(index)
	return d.ConnectionMethod
}

// Image returns the image attached to the given (or current) device, if any.
func (r *Registry) Image(index ...int) *Image {
	d, _, _ := r.device(index)
	return d.Image
}

// RelayFor returns the relay settings that apply to d.
func (r *Registry) RelayFor(d Device) connection.Relay {
	relay := r.relay
	if d.RelayDomain != "" {
		relay.Domain = d.RelayDomain
	}
	if d.RelayPort != 0 {
		relay.Port = d.RelayPort
	}
	return relay
}

// URL returns the request base URL of the given (or current) device.
// An empty registry yields connection.NoDevices; an unusable device yields "".
func (r *Registry) URL(index ...int) string {
	r.mu.Lock()
	_, devices := r.listDevices()
	r.mu.Unlock()

	if len(devices) == 0 {
		return connection.NoDevices
	}

	d, _, ok := r.device(index)
	if !ok {
		return ""
	}
	return connection.URL(d.ConnectionMethod, d.ConnectionInput, r.RelayFor(d))
}

// Endpoint bundles everything the API client needs for the given (or current)
// device.
func (r *Registry) Endpoint(index ...int) (connection.Endpoint, error) {
	url := r.URL(index...)
	if url == connection.NoDevices {
		return connection.Endpoint{}, ErrNoDevices
	}

	d, i, ok := r.device(index)
	if !ok {
		return connection.Endpoint{}, fmt.Errorf("device %d: %w", i, ErrUnresolvable)
	}
	if url == "" {
		return connection.Endpoint{}, fmt.Errorf("device %d (%s): %w", i, d.DisplayName(), ErrUnresolvable)
	}

	return connection.Endpoint{
		BaseURL:   url,
		Method:    d.ConnectionMethod,
		DeviceKey: d.DeviceKey,
	}, nil
}
