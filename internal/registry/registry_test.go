package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogctl/ogctl/internal/connection"
	"github.com/ogctl/ogctl/internal/kvstore"
)

const token32 = "abcdefghijklmnopqrstuvwxyz012345"

type recordingNotifier struct {
	titles []string
}

func (n *recordingNotifier) Alert(title, message string) {
	n.titles = append(n.titles, title)
}

func newTestRegistry(t *testing.T) (*Registry, *kvstore.Memory, *recordingNotifier) {
	t.Helper()
	store := kvstore.NewMemory()
	n := &recordingNotifier{}
	return New(store, WithNotifier(n)), store, n
}

func strPtr(s string) *string { return &s }

func TestListDevices_Empty(t *testing.T) {
	reg, store, n := newTestRegistry(t)

	index, devices := reg.ListDevices()
	assert.Equal(t, 0, index)
	assert.Empty(t, devices)
	assert.NotNil(t, devices)
	assert.Empty(t, n.titles)

	raw, ok, err := store.Get(KeyCurrentIndex)
	require.NoError(t, err)
	assert.True(t, ok, "index should be initialised")
	assert.Equal(t, "0", raw)
}

func TestListDevices_MissingIndexYieldsEmpty(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	require.NoError(t, store.Set(KeyDevices, `[{"conMethod":"IP","conInput":"1.2.3.4"}]`))

	index, devices := reg.ListDevices()
	assert.Equal(t, 0, index)
	assert.Empty(t, devices)
}

func TestListDevices_Malformed(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	require.NoError(t, store.SetMulti(map[string]string{
		KeyDevices:      `{broken`,
		KeyCurrentIndex: `0`,
	}))

	index, devices := reg.ListDevices()
	assert.Equal(t, 0, index)
	assert.Empty(t, devices)
	assert.Equal(t, []string{"Error Reading Data"}, n.titles)
}

func TestListDevices_StorageFailure(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	store.GetErr = errors.New("disk on fire")

	index, devices := reg.ListDevices()
	assert.Equal(t, 0, index)
	assert.Empty(t, devices)
	assert.Equal(t, []string{"Error Reading Data"}, n.titles)
}

func TestListDevices_LegacyFormat(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	require.NoError(t, store.SetMulti(map[string]string{
		KeyDevices:      `[{"conMethod":"OTF","conInput":"OTC-` + token32 + `","devKey":"opendoor","name":"Garage","image":{"uri":"file:///a.jpg","width":640,"height":480}}]`,
		KeyCurrentIndex: `0`,
	}))

	_, devices := reg.ListDevices()
	require.Len(t, devices, 1)
	assert.Equal(t, connection.OTC, devices[0].ConnectionMethod)
	assert.Equal(t, "opendoor", devices[0].DeviceKey)
	require.NotNil(t, devices[0].Image)
	assert.Equal(t, 640, devices[0].Image.Width)
}

func TestSetDevices_RoundTrip(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	list := []Device{
		{ConnectionMethod: connection.IP, ConnectionInput: "192.168.1.50", DeviceKey: "abc", Name: "Main"},
		{ConnectionMethod: connection.OTC, ConnectionInput: "OTC-" + token32, RelayDomain: "relay.example.com", RelayPort: 8443},
		{ConnectionMethod: connection.Blynk, ConnectionInput: token32, Image: &Image{URI: "file:///g.png", Width: 10, Height: 20}},
		{ConnectionMethod: connection.None, ConnectionInput: "garage.local"},
	}

	require.True(t, reg.SetDevices(list))
	index, got := reg.ListDevices()
	assert.Equal(t, 0, index)
	assert.Equal(t, list, got)
}

func TestSetDevices_WriteFailure(t *testing.T) {
	reg, store, n := newTestRegistry(t)
	store.SetErr = errors.New("read-only")

	assert.False(t, reg.SetDevices([]Device{{ConnectionInput: "1.2.3.4"}}))
	assert.False(t, reg.SetCurrentIndex(1))
	assert.Equal(t, []string{"Error Saving Data", "Error Saving Data"}, n.titles)
}

func TestSetCurrentIndex(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.SetDevices([]Device{{ConnectionInput: "a"}, {ConnectionInput: "b"}}))

	assert.True(t, reg.SetCurrentIndex(1))
	index, _ := reg.ListDevices()
	assert.Equal(t, 1, index)

	assert.False(t, reg.SetCurrentIndex(-1))
}

func TestSetCurrentDeviceParam_CreatesDefault(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	require.True(t, reg.SetCurrentDeviceParam(DevicePatch{DeviceKey: strPtr("opendoor")}))

	index, devices := reg.ListDevices()
	assert.Equal(t, 0, index)
	require.Len(t, devices, 1)
	assert.Equal(t, connection.IP, devices[0].ConnectionMethod)
	assert.Equal(t, "", devices[0].ConnectionInput)
	assert.Equal(t, "opendoor", devices[0].DeviceKey)
}

func TestSetCurrentDeviceParam_RederivesMethod(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	tests := []struct {
		input string
		want  connection.Method
	}{
		{"192.168.1.50", connection.IP},
		{"OTC-" + token32, connection.OTC},
		{token32, connection.Blynk},
		{"not an address", connection.None},
	}

	for _, tt := range tests {
		require.True(t, reg.SetCurrentDeviceParam(DevicePatch{ConnectionInput: strPtr(tt.input)}))
		assert.Equal(t, tt.want, reg.ConnectionMethod(), tt.input)
		assert.Equal(t, tt.input, reg.ConnectionInput())
	}

	_, devices := reg.ListDevices()
	assert.Len(t, devices, 1, "patches should update in place")
}

func TestSetCurrentDeviceParam_AddFlow(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.AddDevice(Device{ConnectionInput: "10.0.0.1"}))

	// add-device flow: point at the next slot, then populate it
	require.True(t, reg.SetCurrentIndex(1))
	require.True(t, reg.SetCurrentDeviceParam(DevicePatch{ConnectionInput: strPtr("10.0.0.2"), Name: strPtr("Second")}))

	index, devices := reg.ListDevices()
	assert.Equal(t, 1, index)
	require.Len(t, devices, 2)
	assert.Equal(t, "Second", devices[1].Name)
	assert.Equal(t, connection.IP, devices[1].ConnectionMethod)
}

func TestSetCurrentDeviceParam_KeepsOtherFields(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.AddDevice(Device{ConnectionInput: "10.0.0.1", DeviceKey: "k", Name: "Old"}))

	require.True(t, reg.SetCurrentDeviceParam(DevicePatch{Name: strPtr("New")}))

	_, d := reg.Current()
	require.NotNil(t, d)
	assert.Equal(t, "New", d.Name)
	assert.Equal(t, "k", d.DeviceKey)
	assert.Equal(t, connection.IP, d.ConnectionMethod)
}

func TestRemoveDevice(t *testing.T) {
	tests := []struct {
		name      string
		current   int
		remove    int
		wantIndex int
		wantNames []string
	}{
		{"current resets to zero", 2, 2, 0, []string{"a", "b"}},
		{"first current resets to zero", 0, 0, 0, []string{"b", "c"}},
		{"later device leaves index", 0, 2, 0, []string{"a", "b"}},
		{"index past end resets to zero", 2, 0, 0, []string{"b", "c"}},
		{"earlier device keeps in-range index", 1, 0, 1, []string{"b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, _ := newTestRegistry(t)
			require.True(t, reg.SetDevices([]Device{
				{ConnectionInput: "1.1.1.1", Name: "a"},
				{ConnectionInput: "2.2.2.2", Name: "b"},
				{ConnectionInput: "3.3.3.3", Name: "c"},
			}))
			require.True(t, reg.SetCurrentIndex(tt.current))

			removed, ok := reg.RemoveDevice(tt.remove)
			require.True(t, ok)
			require.NotNil(t, removed)

			index, devices := reg.ListDevices()
			assert.Equal(t, tt.wantIndex, index)
			var names []string
			for _, d := range devices {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Less(t, index, len(devices))
		})
	}
}

func TestRemoveDevice_OutOfRange(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.AddDevice(Device{ConnectionInput: "1.1.1.1"}))

	_, ok := reg.RemoveDevice(5)
	assert.False(t, ok)
	_, ok = reg.RemoveDevice(-1)
	assert.False(t, ok)
}

func TestUndoRemove(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.AddDevice(
		Device{ConnectionInput: "1.1.1.1", Name: "a"},
		Device{ConnectionInput: "2.2.2.2", Name: "b", DeviceKey: "secret"},
	))

	removed, ok := reg.RemoveDevice(1)
	require.True(t, ok)
	assert.Equal(t, "b", removed.Name)

	restored, ok := reg.UndoRemove()
	require.True(t, ok)
	assert.Equal(t, *removed, *restored)

	_, devices := reg.ListDevices()
	require.Len(t, devices, 2)
	assert.Equal(t, "secret", devices[1].DeviceKey)

	_, ok = reg.UndoRemove()
	assert.False(t, ok, "undo is single-shot")
}

func TestAddDevice_DerivesMethod(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.True(t, reg.AddDevice(
		Device{ConnectionInput: "OTC-" + token32},
		Device{ConnectionMethod: connection.IP, ConnectionInput: "kept-as-is"},
	))

	assert.Equal(t, connection.OTC, reg.ConnectionMethod(0))
	assert.Equal(t, connection.IP, reg.ConnectionMethod(1))
}

func TestAccessors_Degrade(t *testing.T) {
	reg, store, _ := newTestRegistry(t)

	assert.Equal(t, "", reg.DeviceKey())
	assert.Equal(t, "", reg.ConnectionInput())
	assert.Equal(t, connection.None, reg.ConnectionMethod())
	assert.Nil(t, reg.Image())

	require.True(t, reg.AddDevice(Device{ConnectionInput: "1.1.1.1", DeviceKey: "k"}))
	assert.Equal(t, "k", reg.DeviceKey())
	assert.Equal(t, "", reg.DeviceKey(7))

	store.GetErr = errors.New("gone")
	assert.Equal(t, "", reg.DeviceKey())
}

func TestURL(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	assert.Equal(t, connection.NoDevices, reg.URL())
	assert.Equal(t, connection.NoDevices, reg.URL(3))

	require.True(t, reg.SetDevices([]Device{{ConnectionMethod: connection.IP, ConnectionInput: "192.168.1.50"}}))
	assert.Equal(t, "http://192.168.1.50", reg.URL())
	assert.Equal(t, "", reg.URL(1))
}

func TestURL_RelayDefaults(t *testing.T) {
	store := kvstore.NewMemory()
	reg := New(store, WithRelayDefaults("relay.example.com", 0))
	require.True(t, reg.AddDevice(
		Device{ConnectionInput: "OTC-" + token32},
		Device{ConnectionInput: "OTC-" + token32, RelayDomain: "other.example.com", RelayPort: 9000},
	))

	assert.Equal(t, "https://relay.example.com/forward/v1/"+token32, reg.URL(0))
	assert.Equal(t, "https://other.example.com:9000/forward/v1/"+token32, reg.URL(1))
}

func TestEndpoint(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Endpoint()
	assert.ErrorIs(t, err, ErrNoDevices)

	require.True(t, reg.AddDevice(
		Device{ConnectionInput: "192.168.1.50", DeviceKey: "abc"},
		Device{ConnectionInput: "garage"},
	))

	ep, err := reg.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, connection.Endpoint{BaseURL: "http://192.168.1.50", Method: connection.IP, DeviceKey: "abc"}, ep)

	_, err = reg.Endpoint(1)
	assert.ErrorIs(t, err, ErrUnresolvable)
	_, err = reg.Endpoint(9)
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestWipe(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	require.True(t, reg.AddDevice(Device{ConnectionInput: "1.1.1.1"}))
	require.True(t, reg.Wipe())

	_, ok, _ := store.Get(KeyDevices)
	assert.False(t, ok)
	assert.Equal(t, connection.NoDevices, reg.URL())
}

func TestDevicePatch(t *testing.T) {
	assert.True(t, DevicePatch{}.Empty())

	d := Device{ConnectionInput: "1.1.1.1", ConnectionMethod: connection.IP, Image: &Image{URI: "x"}}
	d = DevicePatch{ClearImage: true}.Apply(d)
	assert.Nil(t, d.Image)

	m := connection.Blynk
	d = DevicePatch{ConnectionMethod: &m}.Apply(d)
	assert.Equal(t, connection.Blynk, d.ConnectionMethod)

	assert.Equal(t, "1.1.1.1", d.DisplayName())
	assert.Equal(t, "(unnamed device)", Device{}.DisplayName())
}
