package controller

import (
	"fmt"
	"strconv"
	"strings"
)

// OptionKeys lists every key accepted by /co.
var OptionKeys = []string{
	"fwv", "mnt", "dth", "vth", "riv", "alm", "lsz", "tsn", "htp", "cdt",
	"dri", "sto", "mod", "ati", "ato", "atib", "atob", "noto", "usi", "ssid",
	"auth", "bdmn", "bprt", "name", "iftt", "mqtt", "mqpt", "mqun", "mqpw", "dvip",
	"gwip", "subn", "nkey", "ckey",
}

// VarCommandKeys lists every key accepted by /cc.
var VarCommandKeys = []string{"click", "close", "open", "reboot", "apmode"}

// Params is an ordered set of query parameters for a write endpoint. Keys are
// checked against an allow-list and keep the order of their first Set.
type Params struct {
	allowed map[string]struct{}
	keys    []string
	values  map[string]string
}

func newParams(allowed []string) *Params {
	p := &Params{
		allowed: make(map[string]struct{}, len(allowed)),
		values:  make(map[string]string),
	}
	for _, k := range allowed {
		p.allowed[k] = struct{}{}
	}
	return p
}

// NewOptionParams returns an empty parameter set for /co.
func NewOptionParams() *Params {
	return newParams(OptionKeys)
}

// NewVarParams returns an empty parameter set for /cc.
func NewVarParams() *Params {
	return newParams(VarCommandKeys)
}

// Set assigns key. Strings are sent verbatim, integers and booleans in decimal
// (true is 1). Setting an existing key replaces its value in place.
func (p *Params) Set(key string, value any) error {
	if _, ok := p.allowed[key]; !ok {
		return NewValidationError(fmt.Sprintf("unknown parameter %q", key))
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case Flags:
		s = strconv.Itoa(int(v))
	case bool:
		if v {
			s = "1"
		} else {
			s = "0"
		}
	case fmt.Stringer:
		s = v.String()
	default:
		return NewValidationError(fmt.Sprintf("parameter %q: unsupported value type %T", key, value))
	}

	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = s
	return nil
}

// Delete removes key if present.
func (p *Params) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Get returns the value of key.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the defined keys in order.
func (p *Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of defined keys.
func (p *Params) Len() int {
	return len(p.keys)
}

// Allowed reports whether key may be set.
func (p *Params) Allowed(key string) bool {
	_, ok := p.allowed[key]
	return ok
}

// Encode renders the query string. The device key always comes first, even
// when empty, so the controller can reject the request itself.
func (p *Params) Encode(deviceKey string) string {
	var b strings.Builder
	b.WriteString("dkey=")
	b.WriteString(EscapeComponent(deviceKey))
	for _, k := range p.keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(EscapeComponent(p.values[k]))
	}
	return b.String()
}

// ParseAssignments sets each "key=value" argument on p.
func (p *Params) ParseAssignments(args []string) error {
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return NewValidationError(fmt.Sprintf("expected key=value, got %q", arg))
		}
		if err := p.Set(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}
	return nil
}

const upperhex = "0123456789ABCDEF"

// EscapeComponent percent-encodes s the way browsers encode a URI component:
// letters, digits and -_.!~*'() pass through, everything else is encoded
// byte-wise with upper-case hex. Spaces become %20.
func EscapeComponent(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreservedComponent(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
