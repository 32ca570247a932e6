package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/logging"
)

// Blynk virtual pins written by the OpenGarage firmware.
const (
	blynkPinDoor     = "V0"
	blynkPinButton   = "V1"
	blynkPinDistance = "V3"
	blynkPinVehicle  = "V4"
)

// blynkPin reads one virtual pin. Blynk answers with a JSON array of strings,
// e.g. ["1"].
func (c *Client) blynkPin(ctx context.Context, pin string) (int, error) {
	body, err := c.fetch(ctx, "/get/"+pin)
	if err != nil {
		return 0, err
	}

	var values []json.RawMessage
	if err := json.Unmarshal(body, &values); err != nil {
		return 0, NewParseError(fmt.Sprintf("failed to parse pin %s", pin), err)
	}
	if len(values) == 0 {
		return 0, NewParseError(fmt.Sprintf("pin %s has no value", pin), nil)
	}

	var s string
	if err := json.Unmarshal(values[0], &s); err != nil {
		s = string(values[0])
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, NewParseError(fmt.Sprintf("pin %s value %q is not numeric", pin, s), err)
	}
	return int(f), nil
}

func (c *Client) blynkProjectName(ctx context.Context) (string, error) {
	body, err := c.fetch(ctx, "/project")
	if err != nil {
		return "", err
	}
	var project struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &project); err != nil {
		return "", NewParseError("failed to parse project", err)
	}
	return project.Name, nil
}

func (c *Client) blynkVars(ctx context.Context) (*Vars, error) {
	door, err := c.blynkPin(ctx, blynkPinDoor)
	if err != nil {
		return nil, err
	}
	dist, err := c.blynkPin(ctx, blynkPinDistance)
	if err != nil {
		return nil, err
	}
	vehicle, err := c.blynkPin(ctx, blynkPinVehicle)
	if err != nil {
		return nil, err
	}
	name, err := c.blynkProjectName(ctx)
	if err != nil {
		return nil, err
	}
	return &Vars{Door: door, Distance: dist, Vehicle: vehicle, Name: name}, nil
}

func (c *Client) blynkOptions(ctx context.Context) (*Options, error) {
	name, err := c.blynkProjectName(ctx)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(name)
	return &Options{Name: name, raw: map[string]json.RawMessage{"name": raw}}, nil
}

// blynkClick emulates a momentary button press on the relay pin.
func (c *Client) blynkClick(ctx context.Context) error {
	if _, err := c.fetch(ctx, "/update/"+blynkPinButton+"?value=1"); err != nil {
		return err
	}
	// Release even if ctx is cancelled mid-press so the button is not left held.
	waitErr := sleepContext(ctx, c.ClickDelay)
	releaseCtx := ctx
	if waitErr != nil {
		releaseCtx = context.WithoutCancel(ctx)
	}
	if _, err := c.fetch(releaseCtx, "/update/"+blynkPinButton+"?value=0"); err != nil {
		return err
	}
	return waitErr
}

func (c *Client) blynkChangeVars(ctx context.Context, params *Params) (Outcome, error) {
	if params == nil || params.Len() == 0 {
		return successOutcome(), nil
	}

	for _, key := range params.Keys() {
		switch Command(key) {
		case CommandClick:
			if err := c.blynkClick(ctx); err != nil {
				return Outcome{}, err
			}

		case CommandOpen, CommandClose:
			door, err := c.blynkPin(ctx, blynkPinDoor)
			if err != nil {
				return Outcome{}, err
			}
			wantOpen := Command(key) == CommandOpen
			if (door == DoorOpen) == wantOpen {
				logging.Debug("Door already in requested state", zap.String("command", key))
				continue
			}
			if err := c.blynkClick(ctx); err != nil {
				return Outcome{}, err
			}

		default:
			return Outcome{}, NewUnsupportedError(key)
		}
	}
	return successOutcome(), nil
}
