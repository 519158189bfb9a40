package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestRespond_JSONEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	Respond(w, req, http.StatusCreated, map[string]float64{"x": 1.5})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var env struct {
		Data     map[string]float64 `json:"data"`
		Metadata Metadata           `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 1.5, env.Data["x"])
	assert.NotEmpty(t, env.Metadata.Timestamp)
	_, err := uuid.Parse(env.Metadata.RunID)
	assert.NoError(t, err)
}

func TestRespond_Msgpack(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", ContentTypeMsgpack)
	w := httptest.NewRecorder()

	Respond(w, req, http.StatusOK, map[string]float64{"x": 2})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ContentTypeMsgpack, w.Header().Get("Content-Type"))

	var env map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(w.Body.Bytes(), &env))
	require.Contains(t, env, "data")
	require.Contains(t, env, "metadata")
	meta := env["metadata"].(map[string]interface{})
	assert.Contains(t, meta, "run_id")
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{domain.NewValidationError("x", "bad"), http.StatusBadRequest, "validation"},
		{&domain.InvalidViewError{Reason: "bad"}, http.StatusBadRequest, "invalid_view"},
		{&domain.DegenerateInputError{Quantity: "volatility", Reason: "zero"}, http.StatusUnprocessableEntity, "degenerate_input"},
		{&domain.InfeasibleError{Reason: "bounds"}, http.StatusUnprocessableEntity, "infeasible"},
		{&domain.ConvergenceError{Method: "risk parity"}, http.StatusUnprocessableEntity, "convergence"},
		{&domain.TimeoutError{Operation: "solve", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "timeout"},
		{fmt.Errorf("wrapped: %w", &domain.InfeasibleError{}), http.StatusUnprocessableEntity, "infeasible"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			w := httptest.NewRecorder()

			Error(w, req, zerolog.Nop(), tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Error.Kind)
			assert.Equal(t, tt.err.Error(), body.Error.Message)
		})
	}
}

type sampleRequest struct {
	Symbols    []string `json:"symbols" validate:"required,min=1"`
	Confidence float64  `json:"confidence_level" validate:"omitempty,gt=0,lt=1"`
}

func decode(t *testing.T, d *Decoder, body string) (sampleRequest, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dst sampleRequest
	err := d.Decode(httptest.NewRecorder(), req, &dst)
	return dst, err
}

func TestDecoder_Decode(t *testing.T) {
	d := NewDecoder(0)

	got, err := decode(t, d, `{"symbols":["A"],"confidence_level":0.99}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got.Symbols)
	assert.Equal(t, 0.99, got.Confidence)
}

func TestDecoder_Errors(t *testing.T) {
	d := NewDecoder(64)

	tests := []struct {
		name  string
		body  string
		field string
		msg   string
	}{
		{"malformed", `{"symbols":`, "body", "invalid JSON"},
		{"missing", `{}`, "symbols", "symbols is required"},
		{"range", `{"symbols":["A"],"confidence_level":1.5}`, "confidence_level", "less than 1"},
		{"too large", `{"symbols":["` + strings.Repeat("A", 100) + `"]}`, "body", "exceeds 64 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, d, tt.body)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.Contains(t, ve.Reason, tt.msg)
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.1235, Round(0.12345))
	assert.Equal(t, -0.1235, Round(-0.12345))
	assert.Equal(t, 0.375, Round(0.37500000001))
	assert.True(t, math.IsInf(Round(math.Inf(1)), 1))

	assert.Nil(t, RoundSlice(nil))
	assert.Equal(t, []float64{0.3333, 0.6667}, RoundSlice([]float64{1.0 / 3, 2.0 / 3}))
	assert.Equal(t, map[string]float64{"A": 0.1429}, RoundMap(map[string]float64{"A": 1.0 / 7}))
}
