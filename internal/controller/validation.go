package controller

import (
	"fmt"
	"strconv"

	"github.com/ogctl/ogctl/internal/connection"
)

// intRange is the accepted range of a numeric option.
type intRange struct {
	min, max int
	unit     string
}

// optionRanges mirrors the bounds the controller firmware enforces on /co.
var optionRanges = map[string]intRange{
	"mnt":  {0, 3, ""},
	"dth":  {4, 500, "cm"},
	"vth":  {0, 500, "cm"},
	"riv":  {1, 300, "s"},
	"alm":  {0, 2, ""},
	"lsz":  {20, 400, "records"},
	"tsn":  {0, 5, ""},
	"htp":  {1, 65535, ""},
	"cdt":  {50, 5000, "ms"},
	"dri":  {50, 2000, "ms"},
	"sto":  {0, 1, ""},
	"mod":  {0, 1, ""},
	"ati":  {1, 720, "min"},
	"ato":  {0, 3, ""},
	"atib": {0, 23, "h"},
	"atob": {0, 3, ""},
	"noto": {0, 3, ""},
	"usi":  {0, 1, ""},
	"bprt": {1, 65535, ""},
	"mqpt": {1, 65535, ""},
}

var ipOptions = map[string]bool{"dvip": true, "gwip": true, "subn": true}

// ValidateOption checks a single /co value. Unknown numeric keys and free-form
// strings pass.
func ValidateOption(key, value string) error {
	if r, ok := optionRanges[key]; ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return NewValidationError(fmt.Sprintf("%s must be a whole number, got %q", key, value))
		}
		if n < r.min || n > r.max {
			unit := ""
			if r.unit != "" {
				unit = " " + r.unit
			}
			return NewValidationError(fmt.Sprintf("%s must be %d-%d%s, got %d", key, r.min, r.max, unit, n))
		}
		return nil
	}

	if ipOptions[key] && value != "" && connection.Interpret(value) != connection.IP {
		return NewValidationError(fmt.Sprintf("%s must be an IPv4 address, got %q", key, value))
	}

	if key == "name" && len(value) > 32 {
		return NewValidationError(fmt.Sprintf("name too long (max 32 chars): %d chars", len(value)))
	}

	return nil
}

// ValidateParams validates every value in p.
// Returns a slice of validation errors (empty if valid).
func ValidateParams(p *Params) []error {
	var errs []error
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		if err := ValidateOption(key, value); err != nil {
			errs = append(errs, err)
		}
	}

	// A new device key must be confirmed.
	nkey, hasNew := p.Get("nkey")
	ckey, hasConfirm := p.Get("ckey")
	if hasNew != hasConfirm || nkey != ckey {
		errs = append(errs, NewValidationError("nkey and ckey must be set together and match"))
	}

	return errs
}
