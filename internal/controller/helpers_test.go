package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"status": "ok"},
			expectedBody: `{"status":"ok"}`,
		},
		{
			name:         "error response without detail",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Message: "bad request", Code: "validation_error"},
			expectedBody: `{"message":"bad request","code":"validation_error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, domainErrors.NewValidationError("amount", "is required"))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Message, "amount")
	assert.Empty(t, response.Detail)
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"credentials unavailable", domainErrors.ErrCredentialsUnavailable, http.StatusServiceUnavailable, "credentials_unavailable"},
		{"missing location", fmt.Errorf("step: %w", domainErrors.ErrProviderProtocol), http.StatusInternalServerError, "provider_protocol"},
		{"oauth failure", domainErrors.NewProviderError("oauth", 401, "denied", domainErrors.ErrAuthFailed), http.StatusInternalServerError, "provider_auth_failed"},
		{"provider rejection", domainErrors.NewProviderError("put_charge", 400, "bad", domainErrors.ErrProviderRejected), http.StatusInternalServerError, "provider_rejected"},
		{"transport", domainErrors.NewProviderError("get_charge", 0, "", domainErrors.ErrTransport), http.StatusInternalServerError, "provider_transport"},
		{"breaker open", domainErrors.ErrProviderUnavailable, http.StatusInternalServerError, "provider_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedCode, response.Code)
			assert.NotEmpty(t, response.Message)
		})
	}
}

func TestWriteError_ProviderResponseInDetail(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainErrors.NewProviderError("put_charge", 400, `{"title":"Cobranca invalida"}`, domainErrors.ErrProviderRejected)

	writeError(w, err)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response.Detail, "Cobranca invalida")
	assert.Contains(t, response.Detail, "400")
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, errors.New("unexpected error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "internal_error", response.Code)
	assert.Equal(t, "internal server error", response.Message)
	assert.Empty(t, response.Detail)
}

func TestDecodeAndValidate_Success(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"amount":10.5,"description":"order 42","orderId":"42"}`))

	var result CreateChargeRequest
	require.NoError(t, decodeAndValidate(req, &result))
	assert.Equal(t, Amount("10.5"), result.Amount)
	assert.Equal(t, "order 42", result.Description)
	assert.Equal(t, "42", result.OrderID)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{invalid json}`))

	var result CreateChargeRequest
	err := decodeAndValidate(req, &result)

	var validationErr *domainErrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "body", validationErr.Field)
	assert.Contains(t, validationErr.Message, "invalid JSON")
}

func TestDecodeAndValidate_ReportsJSONFieldName(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing amount", `{"description":"order"}`, "amount"},
		{"missing description", `{"amount":"10.00"}`, "description"},
		{"description too long", `{"amount":"10.00","description":"` + strings.Repeat("x", 141) + `"}`, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))

			var result CreateChargeRequest
			err := decodeAndValidate(req, &result)

			var validationErr *domainErrors.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
			assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
		})
	}
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(nil))

	var result CreateChargeRequest
	assert.Error(t, decodeAndValidate(req, &result))
}
