package controller

import (
	"fmt"
	"sort"
	"strings"
)

// Flags is a two-bit option value. Which bits mean what depends on the key:
//
//	noto       bit0 notify on open,   bit1 notify on close
//	ato, atob  bit0 send notification, bit1 close the door
type Flags int

const (
	FlagOpen  Flags = 1 << 0 // noto
	FlagClose Flags = 1 << 1 // noto

	FlagNotify    Flags = 1 << 0 // ato, atob
	FlagAutoClose Flags = 1 << 1 // ato, atob
)

// Has reports whether every bit of x is set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// With returns f with x set.
func (f Flags) With(x Flags) Flags { return f | x }

// Without returns f with x cleared.
func (f Flags) Without(x Flags) Flags { return f &^ x }

// Toggle returns f with x flipped.
func (f Flags) Toggle(x Flags) Flags { return f ^ x }

// Set returns f with x set or cleared.
func (f Flags) Set(x Flags, on bool) Flags {
	if on {
		return f.With(x)
	}
	return f.Without(x)
}

var flagNames = map[string]map[string]Flags{
	"noto": {"open": FlagOpen, "close": FlagClose},
	"ato":  {"notify": FlagNotify, "close": FlagAutoClose},
	"atob": {"notify": FlagNotify, "close": FlagAutoClose},
}

// FlagKeys returns the option keys that hold Flags.
func FlagKeys() []string {
	keys := make([]string, 0, len(flagNames))
	for k := range flagNames {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FlagNames returns the bit names for an option key, lowest bit first.
func FlagNames(key string) []string {
	names, ok := flagNames[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return names[out[i]] < names[out[j]] })
	return out
}

// ApplyFlagChanges edits f according to changes of the form "+name" (set),
// "-name" (clear) or "name" (toggle).
func ApplyFlagChanges(key string, f Flags, changes []string) (Flags, error) {
	names, ok := flagNames[key]
	if !ok {
		return f, NewValidationError(fmt.Sprintf("%q is not a flag option (want one of %s)", key, strings.Join(FlagKeys(), ", ")))
	}

	for _, change := range changes {
		op, name := byte(0), change
		if strings.HasPrefix(change, "+") || strings.HasPrefix(change, "-") {
			op, name = change[0], change[1:]
		}
		bit, ok := names[strings.ToLower(name)]
		if !ok {
			return f, NewValidationError(fmt.Sprintf("unknown flag %q for %s (want one of %s)", name, key, strings.Join(FlagNames(key), ", ")))
		}
		switch op {
		case '+':
			f = f.With(bit)
		case '-':
			f = f.Without(bit)
		default:
			f = f.Toggle(bit)
		}
	}
	return f, nil
}

// Describe lists the set bits of f by name for key, e.g. "open+close".
func (f Flags) Describe(key string) string {
	var set []string
	for _, name := range FlagNames(key) {
		if f.Has(flagNames[key][name]) {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "+")
}
