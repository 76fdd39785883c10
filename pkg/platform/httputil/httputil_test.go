package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "reconcile/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok, "internal errors must not leak a description")
	})

	t.Run("validation error includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "email or phoneNumber is required"))

		require.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "email or phoneNumber is required", body["error_description"])
	})

	t.Run("unavailable maps to 503 without detail", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeUnavailable, "dial tcp 10.0.0.3:5432: connection refused"))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotContains(t, w.Body.String(), "10.0.0.3")
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, io.ErrUnexpectedEOF)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type pingRequest struct {
	Name string `json:"name"`
}

func (p *pingRequest) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("valid body is normalized", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"  ada "}`))
		w := httptest.NewRecorder()

		req, ok := DecodeAndPrepare[pingRequest](w, r, logger, r.Context(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "ada", req.Name)
	})

	t.Run("malformed json is a bad request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[pingRequest](w, r, logger, r.Context(), "req-2")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body runs validation", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[pingRequest](w, r, logger, r.Context(), "req-3")
		assert.False(t, ok)
		assert.Contains(t, w.Body.String(), "name is required")
	})
}
