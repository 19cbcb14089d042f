package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/forecast"
)

// statusFor maps evaluation errors to HTTP statuses.
func statusFor(err error) int {
	var (
		notFound *advisor.LocationNotFoundError
		invalid  *forecast.ValidationError
		cfgErr   *forecast.ConfigError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &cfgErr):
		return http.StatusBadRequest
	default:
		// Provider failures and unusable payloads (forecast.DataError).
		return http.StatusBadGateway
	}
}

// userMessage is the text shown to the user for err. Upstream details stay in the log.
func userMessage(err error) string {
	var (
		notFound *advisor.LocationNotFoundError
		invalid  *forecast.ValidationError
		cfgErr   *forecast.ConfigError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &invalid), errors.As(err, &cfgErr):
		return err.Error()
	default:
		return "Could not retrieve weather forecast data. Please try again later."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Printf("api: evaluation failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": userMessage(err)})
}
