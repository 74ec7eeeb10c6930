package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Provider failures are all reported as 500; the code and detail tell the
// caller which step went wrong.
var errorMappings = []errorMapping{
	{domainErrors.ErrCredentialsUnavailable, http.StatusServiceUnavailable, "credentials_unavailable", "payment provider credentials are not configured"},
	{domainErrors.ErrProviderProtocol, http.StatusInternalServerError, "provider_protocol", "charge was created without a location id"},
	{domainErrors.ErrAuthFailed, http.StatusInternalServerError, "provider_auth_failed", "could not authenticate with the payment provider"},
	{domainErrors.ErrProviderRejected, http.StatusInternalServerError, "provider_rejected", "payment provider rejected the request"},
	{domainErrors.ErrTransport, http.StatusInternalServerError, "provider_transport", "could not reach the payment provider"},
	{domainErrors.ErrProviderUnavailable, http.StatusInternalServerError, "provider_unavailable", "payment provider is temporarily unavailable"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: validationErr.Error(),
			Code:    "validation_error",
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp := ErrorResponse{Message: m.message, Code: m.code}
			if m.status >= http.StatusInternalServerError {
				resp.Detail = err.Error()
				log.Error().Err(err).Str("code", m.code).Msg("provider call failed")
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Message: "internal server error",
		Code:    "internal_error",
	})
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
