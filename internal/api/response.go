// Package api holds the HTTP presentation layer shared by every handler:
// the response envelope, content negotiation, error mapping and request
// decoding.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack is negotiated through the Accept header.
const ContentTypeMsgpack = "application/msgpack"

// Metadata accompanies every successful response.
type Metadata struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
}

// Envelope wraps every successful response.
type Envelope struct {
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// Respond writes data inside the envelope with a fresh run id.
func Respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, Envelope{
		Data: data,
		Metadata: Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RunID:     uuid.NewString(),
		},
	})
}

// Error maps err to its status and writes the error envelope. Server-side
// failures are logged at error level, caller mistakes at debug.
func Error(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status := StatusFor(err)
	kind := domain.ErrorKind(err)

	event := log.Debug()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("kind", kind).
		Int("status", status).
		Str("path", r.URL.Path).
		Msg("Request failed")

	write(w, r, status, ErrorEnvelope{Error: ErrorBody{Kind: kind, Message: err.Error()}})
}

// StatusFor returns the HTTP status of a domain error.
func StatusFor(err error) int {
	switch domain.ErrorKind(err) {
	case "validation", "invalid_view":
		return http.StatusBadRequest
	case "degenerate_input", "infeasible", "convergence":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func wantsMsgpack(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), ContentTypeMsgpack)
}

func write(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if !wantsMsgpack(r) {
		render.Status(r, status)
		render.JSON(w, r, v)
		return
	}

	w.Header().Set("Content-Type", ContentTypeMsgpack)
	w.WriteHeader(status)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	// the status line is already out, nothing left to report to the client
	_ = enc.Encode(v)
}
