package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/version"
)

// OutcomeResponse is the JSON form of a write result.
type OutcomeResponse struct {
	Success bool   `json:"success"`
	Command string `json:"command,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
	Item    string `json:"item,omitempty"`
}

func newOutcomeResponse(o controller.Outcome) OutcomeResponse {
	return OutcomeResponse{Success: o.Success, Title: o.Title, Message: o.Message, Code: o.Code, Item: o.Item}
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Type    string           `json:"type,omitempty"`
	Hint    string           `json:"hint,omitempty"`
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/options", s.handleGetOptions).Methods(http.MethodGet)
	api.HandleFunc("/options", s.handleChangeOptions).Methods(http.MethodPost)
	api.HandleFunc("/logs", s.handleGetLog).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleClearLog).Methods(http.MethodDelete)
	api.HandleFunc("/commands/{command}", s.handleCommand).Methods(http.MethodPost)

	r.Use(logRequests)
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Debug("Bridge request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Short(),
		"clients": s.hub.Count(),
	})
}

// handleStatus returns the last polled snapshot. ?live=1 reads the
// controller directly, as does the first request before any poll finished.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	live, _ := strconv.ParseBool(r.URL.Query().Get("live"))
	if snap := s.Latest(); snap != nil && !live {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	vars, err := s.ctl.GetVars(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &Snapshot{
		Type:    "status",
		Vars:    vars,
		Door:    vars.DoorState(),
		Vehicle: vars.VehicleState(),
	})
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.ctl.GetOptions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// handleChangeOptions accepts a JSON object of option keys to values.
func (s *Server) handleChangeOptions(w http.ResponseWriter, r *http.Request) {
	if s.config.ReadOnly {
		writeError(w, errReadOnly)
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	fields, err := decodeObject(dec)
	if err != nil {
		writeError(w, controller.NewValidationError("request body must be a JSON object: "+err.Error()))
		return
	}

	params, err := paramsFromJSON(fields)
	if err != nil {
		writeError(w, err)
		return
	}
	if errs := controller.ValidateParams(params); len(errs) > 0 {
		writeError(w, errs[0])
		return
	}

	outcome, err := s.ctl.ChangeOptions(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeResponse(outcome))
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	data, err := s.ctl.GetLog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request) {
	if s.config.ReadOnly {
		writeError(w, errReadOnly)
		return
	}
	outcome, err := s.ctl.ClearLog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeResponse(outcome))
}

// handleCommand runs click, open, close, reboot, apmode or toggle.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.config.ReadOnly {
		writeError(w, errReadOnly)
		return
	}

	name := mux.Vars(r)["command"]
	var (
		cmd     controller.Command
		outcome controller.Outcome
		err     error
	)
	if name == "toggle" {
		cmd, outcome, err = s.ctl.Toggle(r.Context())
	} else {
		cmd, err = controller.ParseCommand(name)
		if err != nil {
			writeError(w, controller.NewValidationError(err.Error()))
			return
		}
		outcome, err = s.ctl.Send(r.Context(), cmd)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	logging.Info("Command sent", zap.String("command", string(cmd)))
	resp := newOutcomeResponse(outcome)
	resp.Command = string(cmd)
	writeJSON(w, http.StatusOK, resp)
}

var errReadOnly = errors.New("bridge is read-only")

// jsonField is one member of a JSON object, kept in document order.
type jsonField struct {
	Key string
	Raw json.RawMessage
}

// decodeObject reads one JSON object from dec, keeping its members in the
// order they appear so the /co query lists them the same way.
func decodeObject(dec *json.Decoder) ([]jsonField, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var fields []jsonField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value of %s: %w", key, err)
		}
		fields = append(fields, jsonField{Key: key, Raw: raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// paramsFromJSON converts object members into option params, in order.
// Numbers and booleans are accepted alongside strings.
func paramsFromJSON(fields []jsonField) (*controller.Params, error) {
	params := controller.NewOptionParams()
	for _, f := range fields {
		key, raw := f.Key, f.Raw
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, controller.NewValidationError(fmt.Sprintf("option %s: %v", key, err))
		}
		switch v := value.(type) {
		case string:
			err := params.Set(key, v)
			if err != nil {
				return nil, controller.NewValidationError(err.Error())
			}
		case float64:
			if v != float64(int64(v)) {
				return nil, controller.NewValidationError(fmt.Sprintf("option %s must be an integer", key))
			}
			if err := params.Set(key, int64(v)); err != nil {
				return nil, controller.NewValidationError(err.Error())
			}
		case bool:
			if err := params.Set(key, v); err != nil {
				return nil, controller.NewValidationError(err.Error())
			}
		default:
			return nil, controller.NewValidationError(fmt.Sprintf("option %s has an unsupported value", key))
		}
	}
	return params, nil
}

func errorType(err error) string {
	var de *controller.DeviceError
	if errors.As(err, &de) {
		return de.Type.String()
	}
	return ""
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var de *controller.DeviceError
	switch {
	case errors.Is(err, errReadOnly):
		return http.StatusForbidden
	case errors.Is(err, controller.ErrUnsupported):
		return http.StatusNotImplemented
	case controller.IsValidationError(err):
		return http.StatusBadRequest
	case controller.IsAuthError(err):
		return http.StatusForbidden
	case controller.IsProtocolError(err):
		return http.StatusUnprocessableEntity
	case controller.IsNetworkError(err), controller.IsHTTPError(err), controller.IsParseError(err):
		return http.StatusBadGateway
	case errors.As(err, &de):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{
		Error: controller.GetShortErrorMessage(err),
		Type:  errorType(err),
		Hint:  controller.GetTroubleshootingHint(err),
	}
	if errors.Is(err, errReadOnly) {
		resp.Error = err.Error()
		resp.Hint = ""
	}
	if o, ok := controller.OutcomeOf(err); ok {
		or := newOutcomeResponse(o)
		resp.Outcome = &or
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}
