package forecast

import (
	"errors"
	"testing"

	"github.com/lox/openwindow/internal/models"
)

func TestValidateThresholds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(th *models.Thresholds)
		wantMsg string
	}{
		{"defaults", func(th *models.Thresholds) {}, ""},
		{"temp inverted", func(th *models.Thresholds) { th.MinOutdoorTempF = 80 }, "Min temp >= max temp."},
		{"temp equal", func(th *models.Thresholds) { th.MinOutdoorTempF = th.MaxOutdoorTempF }, "Min temp >= max temp."},
		{"rh inverted", func(th *models.Thresholds) { th.MinIndoorRH = 70 }, "Min RH >= max RH."},
		{"rh over 100", func(th *models.Thresholds) { th.MaxIndoorRH = 120 }, "Max RH must be between 0 and 100."},
		{"negative aqi", func(th *models.Thresholds) { th.MaxAQI = -1 }, "Max AQI cannot be negative."},
		{"precip prob over 100", func(th *models.Thresholds) { th.MaxPrecipProbabilityPercent = 150 }, "Max precipitation probability must be between 0 and 100."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := models.DefaultThresholds()
			tt.mutate(&th)
			err := ValidateThresholds(th)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", ve.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		lat, lon float64
		ok       bool
	}{
		{40.7128, -74.0060, true},
		{90, 180, true},
		{-90, -180, true},
		{91, 0, false},
		{0, -181, false},
	}

	for _, tt := range tests {
		err := ValidateCoordinates(models.Coordinates{Latitude: tt.lat, Longitude: tt.lon})
		if (err == nil) != tt.ok {
			t.Errorf("ValidateCoordinates(%v, %v) = %v, want ok=%v", tt.lat, tt.lon, err, tt.ok)
		}
	}
}
