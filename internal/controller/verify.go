package controller

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// VerificationOptions configures how option verification behaves
type VerificationOptions struct {
	// MaxRetries is the maximum number of verification attempts
	// Default: 3
	MaxRetries int

	// InitialDelay gives the controller time to persist the change
	// Default: 500ms
	InitialDelay time.Duration

	// RetryDelay is the delay between retry attempts
	// Default: 1s
	RetryDelay time.Duration

	// UseExponentialBackoff doubles the delay after each retry (up to MaxRetryDelay)
	// Default: true
	UseExponentialBackoff bool

	// MaxRetryDelay caps the exponential backoff
	// Default: 5s
	MaxRetryDelay time.Duration
}

// DefaultVerificationOptions returns sensible defaults for verification
func DefaultVerificationOptions() *VerificationOptions {
	return &VerificationOptions{
		MaxRetries:            3,
		InitialDelay:          500 * time.Millisecond,
		RetryDelay:            1 * time.Second,
		UseExponentialBackoff: true,
		MaxRetryDelay:         5 * time.Second,
	}
}

// VerificationResult contains the results of an option verification
type VerificationResult struct {
	Success    bool
	Attempts   int
	Actual     *Options
	Mismatches []string
	Error      error
}

// unverifiableKeys are accepted by /co but never echoed by /jo.
var unverifiableKeys = map[string]bool{
	"nkey": true,
	"ckey": true,
	"mqpw": true,
}

// VerifyOptions re-reads /jo until every key in expected matches or the
// attempts run out.
func (c *Client) VerifyOptions(ctx context.Context, expected *Params, opts *VerificationOptions) *VerificationResult {
	if opts == nil {
		opts = DefaultVerificationOptions()
	}

	result := &VerificationResult{Mismatches: []string{}}

	if err := sleepContext(ctx, opts.InitialDelay); err != nil {
		result.Error = err
		return result
	}

	currentDelay := opts.RetryDelay

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result.Attempts++

		if attempt > 0 {
			if err := sleepContext(ctx, currentDelay); err != nil {
				result.Error = err
				return result
			}
			if opts.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > opts.MaxRetryDelay {
					currentDelay = opts.MaxRetryDelay
				}
			}
		}

		current, err := c.GetOptions(ctx)
		if err != nil {
			result.Error = fmt.Errorf("attempt %d: failed to read options: %w", attempt+1, err)
			if IsValidationError(err) || IsParseError(err) {
				return result
			}
			continue
		}

		result.Actual = current
		result.Mismatches = verifyOptionsMatch(expected, current)

		if len(result.Mismatches) == 0 {
			result.Success = true
			result.Error = nil
			return result
		}

		if attempt < opts.MaxRetries {
			result.Error = fmt.Errorf("attempt %d: options mismatch (will retry)", attempt+1)
		} else {
			result.Error = fmt.Errorf("verification failed after %d attempts: %s", result.Attempts, formatMismatches(result.Mismatches))
		}
	}

	return result
}

// ChangeAndVerifyOptions writes params through /co and then verifies them.
func (c *Client) ChangeAndVerifyOptions(ctx context.Context, params *Params, opts *VerificationOptions) *VerificationResult {
	if _, err := c.ChangeOptions(ctx, params); err != nil {
		return &VerificationResult{
			Mismatches: []string{},
			Error:      fmt.Errorf("update failed: %w", err),
		}
	}
	return c.VerifyOptions(ctx, params, opts)
}

// verifyOptionsMatch returns one line per expected key whose value differs.
func verifyOptionsMatch(expected *Params, actual *Options) []string {
	var mismatches []string
	for _, key := range expected.Keys() {
		if unverifiableKeys[key] {
			continue
		}
		want, _ := expected.Get(key)
		got, ok := actual.Lookup(key)
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %q, not reported", key, want))
			continue
		}
		if got != want {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %q, got %q", key, want, got))
		}
	}
	return mismatches
}

func formatMismatches(mismatches []string) string {
	if len(mismatches) == 0 {
		return "no mismatches"
	}
	return strings.Join(mismatches, "; ")
}
