package controller

import "fmt"

// Result codes returned by write endpoints.
const (
	ResultSuccess      = 1
	ResultUnauthorized = 2
	ResultMismatch     = 3
	ResultDataMissing  = 16
	ResultOutOfBound   = 17
	ResultDataFormat   = 18
	ResultPageNotFound = 32
	ResultNotPermitted = 48
	ResultUploadFailed = 64
)

// TitleConnectionFailed is the outcome title when the relay, not the
// controller, answered.
const TitleConnectionFailed = "Connection failed"

// Outcome is the classification of a write response.
type Outcome struct {
	Success bool
	Title   string // Short error title, empty on success
	Message string // User-facing explanation
	Code    int    // Result code, 0 when the relay answered instead
	Item    string // Offending field for codes 16-18
}

// InterpretResult classifies a write response. It performs no I/O.
func InterpretResult(r ResultJSON) Outcome {
	if r.Message != "" {
		return Outcome{
			Title:   TitleConnectionFailed,
			Message: r.Message,
		}
	}

	o := Outcome{Code: r.Result, Item: r.Item}
	switch r.Result {
	case ResultSuccess:
		o.Success = true
		o.Message = "Command issued successfully"
	case ResultUnauthorized:
		o.Title = "Invalid or Empty Device Key"
		o.Message = "The device key is empty or invalid. Check the key in the device settings."
	case ResultMismatch:
		o.Title = "Key Mismatch"
		o.Message = "The new device key and its confirmation do not match."
	case ResultDataMissing:
		o.Title = "Data Missing"
		o.Message = fmt.Sprintf("A required value is missing: %s", itemName(r.Item))
	case ResultOutOfBound:
		o.Title = "Out of Range"
		o.Message = fmt.Sprintf("A value is out of range: %s", itemName(r.Item))
	case ResultDataFormat:
		o.Title = "Data Format Error"
		o.Message = fmt.Sprintf("A value is not formatted correctly: %s", itemName(r.Item))
	case ResultPageNotFound:
		o.Title = "Page Not Found"
		o.Message = "The controller does not recognise this request. Its firmware may be too old."
	case ResultNotPermitted:
		o.Title = "Action Not Permitted"
		o.Message = "The controller refused this action."
	case ResultUploadFailed:
		o.Title = "Upload Failed"
		o.Message = "The controller reported a failed upload."
	default:
		o.Title = "Unknown Error"
		o.Message = fmt.Sprintf("The controller returned an unexpected result (%d).", r.Result)
	}
	return o
}

func itemName(item string) string {
	if item == "" {
		return "(unspecified)"
	}
	return item
}

// String returns the title and message on one line.
func (o Outcome) String() string {
	if o.Success {
		return o.Message
	}
	return o.Title + ": " + o.Message
}

// Err returns nil for a successful outcome and a *DeviceError otherwise.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return NewProtocolError(o)
}

func successOutcome() Outcome {
	return InterpretResult(ResultJSON{Result: ResultSuccess})
}
