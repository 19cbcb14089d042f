package ingest

import (
	"encoding/json"

	"github.com/lox/openwindow/internal/models"
)

const (
	FlagSeriesLengthMismatch = "series_length_mismatch"
	FlagTempOutOfRange       = "temp_out_of_range"
	FlagDewPointAboveTemp    = "dew_point_above_temp"
	FlagPrecipNegative       = "precip_negative"
	FlagPrecipProbInvalid    = "precip_prob_invalid"
	FlagAQINegative          = "aqi_negative"
)

// ValidateWeather returns quality flags for implausible values in a forecast
// payload. Flags are recorded, not enforced; the window search treats the
// payload as-is.
func ValidateWeather(wx *models.WeatherForecast) []string {
	if wx == nil || wx.Hourly == nil {
		return nil
	}
	h := wx.Hourly
	var flags flagSet

	n := len(h.Time)
	for _, series := range [][]*float64{h.Temperature, h.DewPoint, h.Precipitation, h.PrecipitationProbability} {
		if series != nil && len(series) != n {
			flags.add(FlagSeriesLengthMismatch)
		}
	}

	for i, t := range h.Temperature {
		if t == nil {
			continue
		}
		if *t < -80 || *t > 140 {
			flags.add(FlagTempOutOfRange)
		}
		if i < len(h.DewPoint) && h.DewPoint[i] != nil && *h.DewPoint[i] > *t+0.5 {
			flags.add(FlagDewPointAboveTemp)
		}
	}
	for _, p := range h.Precipitation {
		if p != nil && *p < 0 {
			flags.add(FlagPrecipNegative)
		}
	}
	for _, p := range h.PrecipitationProbability {
		if p != nil && (*p < 0 || *p > 100) {
			flags.add(FlagPrecipProbInvalid)
		}
	}
	return flags
}

// ValidateAirQuality returns quality flags for an air-quality payload.
func ValidateAirQuality(aq *models.AirQualityForecast) []string {
	if aq == nil || aq.Hourly == nil {
		return nil
	}
	var flags flagSet
	if aq.Hourly.USAQI != nil && len(aq.Hourly.USAQI) != len(aq.Hourly.Time) {
		flags.add(FlagSeriesLengthMismatch)
	}
	for _, v := range aq.Hourly.USAQI {
		if v != nil && *v < 0 {
			flags.add(FlagAQINegative)
		}
	}
	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}

// flagSet keeps flags unique and in first-seen order.
type flagSet []string

func (f *flagSet) add(flag string) {
	for _, existing := range *f {
		if existing == flag {
			return
		}
	}
	*f = append(*f, flag)
}
