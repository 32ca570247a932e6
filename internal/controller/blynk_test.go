package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ogctl/ogctl/internal/connection"
)

const blynkToken = "abcdefghijklmnopqrstuvwxyz012345"

// blynkServer emulates the Blynk HTTP API for one project.
type blynkServer struct {
	mu      sync.Mutex
	pins    map[string]string
	updates []string
	paths   []string
}

func newBlynkClient(t *testing.T, door string) (*Client, *blynkServer) {
	t.Helper()
	bs := &blynkServer{pins: map[string]string{"V0": door, "V3": "42", "V4": "1"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs.mu.Lock()
		defer bs.mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/"+blynkToken)
		bs.paths = append(bs.paths, path)

		switch {
		case path == "/project":
			writeJSON(w, `{"name":"Blynk Garage","id":1}`)
		case strings.HasPrefix(path, "/get/"):
			v, ok := bs.pins[strings.TrimPrefix(path, "/get/")]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			writeJSON(w, `["`+v+`"]`)
		case strings.HasPrefix(path, "/update/"):
			bs.updates = append(bs.updates, strings.TrimPrefix(path, "/update/")+"?"+r.URL.RawQuery)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	ep := connection.Endpoint{BaseURL: server.URL + "/" + blynkToken, Method: connection.Blynk}
	return NewClient(ep, WithClickDelay(0)), bs
}

func (bs *blynkServer) seen() []string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return append([]string(nil), bs.paths...)
}

func (bs *blynkServer) clicks() []string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return append([]string(nil), bs.updates...)
}

func TestBlynk_GetVars(t *testing.T) {
	client, bs := newBlynkClient(t, "1")

	vars, err := client.GetVars(context.Background())
	if err != nil {
		t.Fatalf("GetVars() error = %v", err)
	}
	if !vars.IsOpen() || vars.Distance != 42 || vars.Vehicle != VehiclePresent || vars.Name != "Blynk Garage" {
		t.Errorf("unexpected vars: %+v", vars)
	}

	want := []string{"/get/V0", "/get/V3", "/get/V4", "/project"}
	if got := bs.seen(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestBlynk_GetOptions(t *testing.T) {
	client, _ := newBlynkClient(t, "0")

	opts, err := client.GetOptions(context.Background())
	if err != nil {
		t.Fatalf("GetOptions() error = %v", err)
	}
	if opts.Name != "Blynk Garage" {
		t.Errorf("Name = %q", opts.Name)
	}
	if v, ok := opts.Lookup("name"); !ok || v != "Blynk Garage" {
		t.Errorf("Lookup(name) = %q, %v", v, ok)
	}
}

func TestBlynk_Click(t *testing.T) {
	client, bs := newBlynkClient(t, "0")

	outcome, err := client.Click(context.Background())
	if err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if !outcome.Success {
		t.Errorf("outcome = %+v", outcome)
	}
	want := []string{"V1?value=1", "V1?value=0"}
	if got := bs.clicks(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("updates = %v, want %v", got, want)
	}
}

func TestBlynk_OpenClose(t *testing.T) {
	tests := []struct {
		name       string
		door       string
		call       func(*Client) (Outcome, error)
		wantClicks int
	}{
		{"open when closed", "0", func(c *Client) (Outcome, error) { return c.Open(context.Background()) }, 2},
		{"open when open", "1", func(c *Client) (Outcome, error) { return c.Open(context.Background()) }, 0},
		{"close when open", "1", func(c *Client) (Outcome, error) { return c.Close(context.Background()) }, 2},
		{"close when closed", "0", func(c *Client) (Outcome, error) { return c.Close(context.Background()) }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, bs := newBlynkClient(t, tt.door)
			outcome, err := tt.call(client)
			if err != nil || !outcome.Success {
				t.Fatalf("outcome = %+v, err = %v", outcome, err)
			}
			if got := len(bs.clicks()); got != tt.wantClicks {
				t.Errorf("updates = %d, want %d", got, tt.wantClicks)
			}
		})
	}
}

func TestBlynk_Toggle(t *testing.T) {
	client, bs := newBlynkClient(t, "1")

	cmd, outcome, err := client.Toggle(context.Background())
	if err != nil || !outcome.Success {
		t.Fatalf("Toggle() = %+v, %v", outcome, err)
	}
	if cmd != CommandClick {
		t.Errorf("cmd = %s, want click", cmd)
	}
	if len(bs.clicks()) != 2 {
		t.Errorf("updates = %v", bs.clicks())
	}
}

func TestBlynk_Unsupported(t *testing.T) {
	client, bs := newBlynkClient(t, "0")
	ctx := context.Background()

	calls := map[string]func() error{
		"log":      func() error { _, err := client.GetLog(ctx); return err },
		"clearlog": func() error { _, err := client.ClearLog(ctx); return err },
		"resetall": func() error { _, err := client.ResetAll(ctx); return err },
		"co": func() error {
			p := NewOptionParams()
			_ = p.Set("name", "x")
			_, err := client.ChangeOptions(ctx, p)
			return err
		},
		"reboot": func() error { _, err := client.Reboot(ctx); return err },
		"apmode": func() error { _, err := client.APMode(ctx); return err },
	}

	for name, call := range calls {
		err := call()
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: error = %v, want ErrUnsupported", name, err)
		}
	}
	if got := bs.seen(); len(got) != 0 {
		t.Errorf("unsupported operations must not issue requests, got %v", got)
	}
}
