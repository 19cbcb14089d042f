package forecast

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lox/openwindow/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError is a user-facing input problem, caught before evaluation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateThresholds checks the caller-level invariants on th: each minimum
// below its maximum, percentages within [0, 100] and a non-negative AQI ceiling.
func ValidateThresholds(th models.Thresholds) error {
	err := validate.Struct(th)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate thresholds: %w", err)
	}
	return &ValidationError{Message: thresholdMessage(verrs[0])}
}

func thresholdMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "MinOutdoorTempF":
		return "Min temp >= max temp."
	case "MinIndoorRH":
		if fe.Tag() == "ltfield" {
			return "Min RH >= max RH."
		}
		return "Min RH must be between 0 and 100."
	case "MaxIndoorRH":
		return "Max RH must be between 0 and 100."
	case "MaxAQI":
		return "Max AQI cannot be negative."
	case "MaxPrecipProbabilityPercent":
		return "Max precipitation probability must be between 0 and 100."
	}
	return fmt.Sprintf("Invalid %s.", fe.Field())
}

// ValidateCoordinates rejects latitudes outside [-90, 90] and longitudes outside [-180, 180].
func ValidateCoordinates(c models.Coordinates) error {
	if err := validate.Struct(c); err != nil {
		return &ValidationError{Message: "Invalid Latitude/Longitude provided."}
	}
	return nil
}
