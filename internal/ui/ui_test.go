package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/registry"
)

var _ registry.Notifier = (*Notifier)(nil)

func TestResult_Render(t *testing.T) {
	out := NewSuccessResult("Door opened", Detail{"Device", "Garage"}).SetWidth(80).Render()
	for _, want := range []string{SuccessMarker, "Door opened", "Device:", "Garage"} {
		if !strings.Contains(out, want) {
			t.Errorf("success box missing %q:\n%s", want, out)
		}
	}

	out = NewFailureResult("Device Key Error", errors.New("rejected"), []string{"check the key"}).
		SetAction("ogctl device set --prompt-key").
		SetWidth(80).
		Render()
	for _, want := range []string{"FAILED", "Error: rejected", "Troubleshooting:", "check the key", "Next:", "--prompt-key"} {
		if !strings.Contains(out, want) {
			t.Errorf("failure box missing %q:\n%s", want, out)
		}
	}
}

func TestResult_DetailsKeepOrder(t *testing.T) {
	r := NewWarningResult("x").SetWidth(80)
	r.AddDetail("First", "1").AddDetail("Second", "2").AddDetail("Third", "3")
	out := r.Render()
	if !(strings.Index(out, "First") < strings.Index(out, "Second") && strings.Index(out, "Second") < strings.Index(out, "Third")) {
		t.Errorf("details out of order:\n%s", out)
	}
}

func TestHeader_Render(t *testing.T) {
	out := NewHeader("Garage", "ogctl status", Detail{"Connection", "IP"}).SetWidth(70).Render()
	for _, want := range []string{"GARAGE", "ogctl status", "Connection:", "IP"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_PrintError(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	outcome := controller.InterpretResult(controller.ResultJSON{Result: controller.ResultUnauthorized})
	p.PrintOutcome("Saved", outcome)

	out := buf.String()
	for _, want := range []string{"Invalid or Empty Device Key", "ogctl device set --prompt-key"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "Troubleshooting:") != 1 {
		t.Errorf("troubleshooting title should appear once:\n%s", out)
	}

	buf.Reset()
	p.PrintOutcome("Saved", controller.InterpretResult(controller.ResultJSON{Result: controller.ResultSuccess}))
	if !strings.Contains(buf.String(), "Saved") || strings.Contains(buf.String(), "FAILED") {
		t.Errorf("success outcome rendered as:\n%s", buf.String())
	}
}

func TestSettingsAction(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no device", controller.ErrNoEndpoint, "ogctl device set --input <ip-address|OTC-token>"},
		{"bad key", controller.NewProtocolError(controller.Outcome{Code: controller.ResultUnauthorized}), "ogctl device set --prompt-key"},
		{"validation", controller.NewValidationError("dth out of range"), ""},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SettingsAction(tt.err); got != tt.want {
				t.Errorf("SettingsAction() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input     string
		assumeYes bool
		want      bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", false, false},
		{"\n", false, false},
		{"", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader(tt.input), &out, tt.assumeYes)
		p.Width = 80
		if got := p.Confirm("Delete device?", "This cannot be undone"); got != tt.want {
			t.Errorf("Confirm(%q, yes=%v) = %v, want %v", tt.input, tt.assumeYes, got, tt.want)
		}
		if tt.assumeYes && out.Len() != 0 {
			t.Errorf("--yes should not prompt, wrote %q", out.String())
		}
	}
}

func TestPrompter_ConfirmTyped(t *testing.T) {
	p := NewPrompter(strings.NewReader("reset\nRESET\n"), &bytes.Buffer{}, false)
	if p.ConfirmTyped("Factory reset", nil, "RESET") {
		t.Error("wrong case should decline")
	}
	if !p.ConfirmTyped("Factory reset", nil, "RESET") {
		t.Error("exact word should confirm")
	}
}

func TestPrompter_SecretFallsBackToLine(t *testing.T) {
	p := NewPrompter(strings.NewReader("opendoor\n"), &bytes.Buffer{}, false)
	got, err := p.Secret("Device key: ")
	if err != nil || got != "opendoor" {
		t.Errorf("Secret() = %q, %v", got, err)
	}
}

func TestNotifier_Alert(t *testing.T) {
	var buf bytes.Buffer
	NewNotifier(&buf).Alert("Storage error", "could not read devices")
	if !strings.Contains(buf.String(), "Storage error") || !strings.Contains(buf.String(), "could not read devices") {
		t.Errorf("Alert() output:\n%s", buf.String())
	}
}
