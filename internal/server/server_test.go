package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/poller"
)

type fakeController struct {
	mu       sync.Mutex
	vars     controller.Vars
	varsErr  error
	opts     controller.Options
	changed  []string
	commands []controller.Command
	writeErr error
	log      controller.LogData
}

func (f *fakeController) GetVars(ctx context.Context) (*controller.Vars, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.varsErr != nil {
		return nil, f.varsErr
	}
	v := f.vars
	return &v, nil
}

func (f *fakeController) GetOptions(ctx context.Context) (*controller.Options, error) {
	o := f.opts
	return &o, nil
}

func (f *fakeController) ChangeOptions(ctx context.Context, p *controller.Params) (controller.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		o, _ := controller.OutcomeOf(f.writeErr)
		return o, f.writeErr
	}
	f.changed = append(f.changed, p.Encode("k"))
	return controller.InterpretResult(controller.ResultJSON{Result: 1}), nil
}

func (f *fakeController) GetLog(ctx context.Context) (*controller.LogData, error) {
	l := f.log
	return &l, nil
}

func (f *fakeController) ClearLog(ctx context.Context) (controller.Outcome, error) {
	return controller.InterpretResult(controller.ResultJSON{Result: 1}), nil
}

func (f *fakeController) Send(ctx context.Context, cmd controller.Command) (controller.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return controller.InterpretResult(controller.ResultJSON{Result: 1}), nil
}

func (f *fakeController) Toggle(ctx context.Context) (controller.Command, controller.Outcome, error) {
	f.mu.Lock()
	cmd := controller.CommandOpen
	if f.vars.Door == controller.DoorOpen {
		cmd = controller.CommandClose
	}
	f.mu.Unlock()
	o, err := f.Send(ctx, cmd)
	return cmd, o, err
}

func newTestServer(t *testing.T, ctl *fakeController, cfg *Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	s, err := New(cfg, ctl)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestNew(t *testing.T) {
	_, err := New(&Config{}, nil)
	assert.Error(t, err)

	s, err := New(&Config{}, &fakeController{})
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, s.config.Listen)
	assert.Equal(t, poller.DefaultInterval, s.config.PollInterval)
	assert.Nil(t, s.Latest())
	assert.Nil(t, s.Addr())
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeController{}, nil)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestStatus_LiveBeforeFirstPoll(t *testing.T) {
	ctl := &fakeController{vars: controller.Vars{Door: controller.DoorOpen, Distance: 30, Name: "Garage"}}
	_, ts := newTestServer(t, ctl, nil)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[Snapshot](t, resp)
	assert.Equal(t, "Open", snap.Door)
	assert.Equal(t, 30, snap.Vars.Distance)
}

func TestStatus_UsesLatestSnapshot(t *testing.T) {
	ctl := &fakeController{vars: controller.Vars{Door: controller.DoorClosed}}
	s, ts := newTestServer(t, ctl, nil)

	s.publish(poller.Update{Seq: 7, Vars: &controller.Vars{Door: controller.DoorOpen}, StartedAt: time.Now()})

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	snap := decode[Snapshot](t, resp)
	assert.Equal(t, uint64(7), snap.Seq)
	assert.Equal(t, "Open", snap.Door)

	resp, err = http.Get(ts.URL + "/api/status?live=1")
	require.NoError(t, err)
	assert.Equal(t, "Closed", decode[Snapshot](t, resp).Door)
}

func TestStatus_ControllerUnreachable(t *testing.T) {
	ctl := &fakeController{varsErr: controller.NewNetworkError("request failed", "192.168.1.40", &net.OpError{Op: "dial", Err: os.ErrDeadlineExceeded})}
	_, ts := newTestServer(t, ctl, nil)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.NotEmpty(t, body.Error)
	assert.NotEmpty(t, body.Hint)
}

func TestPublish_KeepsLastGoodVarsOnError(t *testing.T) {
	s, _ := newTestServer(t, &fakeController{}, nil)
	s.publish(poller.Update{Seq: 1, Vars: &controller.Vars{Distance: 12}})
	s.publish(poller.Update{Seq: 2, Err: controller.NewHTTPError(500, "boom")})

	latest := s.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, uint64(2), latest.Seq)
	assert.Equal(t, 12, latest.Vars.Distance)
	assert.NotEmpty(t, latest.Error)
	assert.Equal(t, controller.ErrTypeHTTP.String(), latest.ErrorType)
}

func TestCommands(t *testing.T) {
	ctl := &fakeController{vars: controller.Vars{Door: controller.DoorOpen}}
	_, ts := newTestServer(t, ctl, nil)

	resp, err := http.Post(ts.URL+"/api/commands/click", "", nil)
	require.NoError(t, err)
	body := decode[OutcomeResponse](t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, "click", body.Command)

	resp, err = http.Post(ts.URL+"/api/commands/toggle", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "close", decode[OutcomeResponse](t, resp).Command)

	resp, err = http.Post(ts.URL+"/api/commands/explode", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, []controller.Command{controller.CommandClick, controller.CommandClose}, ctl.commands)
}

func TestChangeOptions(t *testing.T) {
	ctl := &fakeController{}
	_, ts := newTestServer(t, ctl, nil)

	resp, err := http.Post(ts.URL+"/api/options", "application/json", strings.NewReader(`{"dth":25}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[OutcomeResponse](t, resp).Success)
	assert.Equal(t, []string{"dkey=k&dth=25"}, ctl.changed)

	tests := []struct {
		name string
		body string
	}{
		{"not an object", `[1,2]`},
		{"unknown key", `{"bogus":1}`},
		{"out of range", `{"dth":99999}`},
		{"fractional", `{"dth":2.5}`},
		{"unconfirmed key", `{"nkey":"new"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/options", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			resp.Body.Close()
		})
	}
	assert.Len(t, ctl.changed, 1)
}

func TestChangeOptions_KeepsKeyOrder(t *testing.T) {
	ctl := &fakeController{}
	_, ts := newTestServer(t, ctl, nil)

	resp, err := http.Post(ts.URL+"/api/options", "application/json",
		strings.NewReader(`{"name":"Garage","dth":25,"vth":40,"riv":5}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, []string{"dkey=k&name=Garage&dth=25&vth=40&riv=5"}, ctl.changed)
}

func TestParamsFromJSON_DocumentOrder(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"name":"Garage","dth":"25","vth":"40","riv":"5"}`, "dkey=abc&name=Garage&dth=25&vth=40&riv=5"},
		{`{"riv":5,"vth":40,"dth":25,"name":"Garage"}`, "dkey=abc&riv=5&vth=40&dth=25&name=Garage"},
		{`{"alm":1, "mqtt":"broker.local", "mqpt":1883}`, "dkey=abc&alm=1&mqtt=broker.local&mqpt=1883"},
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			fields, err := decodeObject(json.NewDecoder(strings.NewReader(tt.body)))
			require.NoError(t, err)
			params, err := paramsFromJSON(fields)
			require.NoError(t, err)
			require.Equal(t, tt.want, params.Encode("abc"))
		}
	}
}

func TestDecodeObject_Rejects(t *testing.T) {
	for _, body := range []string{`[1,2]`, `"dth"`, `{"dth":`, ``} {
		_, err := decodeObject(json.NewDecoder(strings.NewReader(body)))
		assert.Error(t, err, body)
	}
}

func TestChangeOptions_DeviceKeyRejected(t *testing.T) {
	outcome := controller.InterpretResult(controller.ResultJSON{Result: controller.ResultUnauthorized})
	ctl := &fakeController{writeErr: controller.NewProtocolError(outcome)}
	_, ts := newTestServer(t, ctl, nil)

	resp, err := http.Post(ts.URL+"/api/options", "application/json", strings.NewReader(`{"name":"Garage"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	require.NotNil(t, body.Outcome)
	assert.Equal(t, controller.ResultUnauthorized, body.Outcome.Code)
}

func TestReadOnly(t *testing.T) {
	ctl := &fakeController{}
	_, ts := newTestServer(t, ctl, &Config{ReadOnly: true})

	for _, req := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/commands/open", ""},
		{http.MethodPost, "/api/options", `{"dth":25}`},
		{http.MethodDelete, "/api/logs", ""},
	} {
		r, err := http.NewRequest(req.method, ts.URL+req.path, bytes.NewBufferString(req.body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(r)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, req.path)
		resp.Body.Close()
	}
	assert.Empty(t, ctl.commands)

	resp, err := http.Get(ts.URL + "/api/logs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotImplemented, statusFor(controller.NewUnsupportedError("log")))
	assert.Equal(t, http.StatusBadRequest, statusFor(controller.NewValidationError("x")))
	assert.Equal(t, http.StatusBadGateway, statusFor(controller.NewParseError("x", nil)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	mismatch := controller.InterpretResult(controller.ResultJSON{Result: controller.ResultDataMissing, Item: "dth"})
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(controller.NewProtocolError(mismatch)))
}

func TestWebSocketStream(t *testing.T) {
	ctl := &fakeController{vars: controller.Vars{Door: controller.DoorClosed, Distance: 200}}
	s, err := New(&Config{PollInterval: 20 * time.Millisecond}, ctl)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+listener.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "status", snap.Type)
	assert.Equal(t, "Closed", snap.Door)
	assert.Equal(t, 200, snap.Vars.Distance)
	assert.Equal(t, 1, s.GetActiveConnections())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, s.GetActiveConnections())
}

func TestHub_DropsSlowClients(t *testing.T) {
	h := NewHub()
	c := &wsClient{id: "slow", send: make(chan []byte, 1), done: make(chan struct{})}
	h.add(c)

	h.Broadcast(&Snapshot{Type: "status", Seq: 1})
	assert.Equal(t, 1, h.Count())
	h.Broadcast(&Snapshot{Type: "status", Seq: 2})
	assert.Equal(t, 0, h.Count())

	select {
	case <-c.done:
	default:
		t.Fatal("dropped client should be signalled")
	}
}

func TestRecordSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.jsonl")
	RecordSnapshot(path, &Snapshot{Type: "status", Seq: 1})
	RecordSnapshot(path, &Snapshot{Type: "status", Seq: 2, Error: "timeout"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"error":"timeout"`)
}

func TestNewTLSConfig_MissingFiles(t *testing.T) {
	_, err := NewTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem")
	assert.Error(t, err)
}
