package api

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/forecast"
	"github.com/lox/openwindow/internal/models"
)

// FormValues echoes the request back into the page form.
type FormValues struct {
	Location      string
	Lat           string
	Lon           string
	MinTemp       string
	MaxTemp       string
	MinRH         string
	MaxRH         string
	IndoorRefTemp string
	MaxAQI        string
	MaxPrecipProb string
}

func formValues(q url.Values) FormValues {
	d := models.DefaultThresholds()
	get := func(key string, def string) string {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
		return def
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return FormValues{
		Location:      strings.TrimSpace(q.Get("location")),
		Lat:           strings.TrimSpace(q.Get("lat")),
		Lon:           strings.TrimSpace(q.Get("lon")),
		MinTemp:       get("min_temp", f(d.MinOutdoorTempF)),
		MaxTemp:       get("max_temp", f(d.MaxOutdoorTempF)),
		MinRH:         get("min_rh", f(d.MinIndoorRH)),
		MaxRH:         get("max_rh", f(d.MaxIndoorRH)),
		IndoorRefTemp: get("indoor_ref_temp", f(d.IndoorReferenceTempF)),
		MaxAQI:        get("max_aqi", strconv.Itoa(d.MaxAQI)),
		MaxPrecipProb: get("max_precip_prob", f(d.MaxPrecipProbabilityPercent)),
	}
}

// parseRequest builds an evaluation request from query parameters. Missing
// thresholds take their defaults.
func parseRequest(q url.Values, source string) (advisor.Request, error) {
	fv := formValues(q)
	req := advisor.Request{Query: fv.Location, Source: source}

	var err error
	parse := func(name, raw string, dst *float64) {
		if err != nil {
			return
		}
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			err = &forecast.ValidationError{Message: "Invalid value for " + name + "."}
			return
		}
		*dst = v
	}

	th := &req.Thresholds
	parse("min_temp", fv.MinTemp, &th.MinOutdoorTempF)
	parse("max_temp", fv.MaxTemp, &th.MaxOutdoorTempF)
	parse("min_rh", fv.MinRH, &th.MinIndoorRH)
	parse("max_rh", fv.MaxRH, &th.MaxIndoorRH)
	parse("indoor_ref_temp", fv.IndoorRefTemp, &th.IndoorReferenceTempF)
	parse("max_precip_prob", fv.MaxPrecipProb, &th.MaxPrecipProbabilityPercent)
	if err != nil {
		return req, err
	}
	if th.MaxAQI, err = strconv.Atoi(fv.MaxAQI); err != nil {
		return req, &forecast.ValidationError{Message: "Invalid value for max_aqi."}
	}

	if req.Query == "" && (fv.Lat != "" || fv.Lon != "") {
		var c models.Coordinates
		parse("lat", fv.Lat, &c.Latitude)
		parse("lon", fv.Lon, &c.Longitude)
		if err != nil {
			return req, &forecast.ValidationError{Message: "Invalid Latitude/Longitude provided."}
		}
		req.Coordinates = &c
	}
	return req, nil
}
