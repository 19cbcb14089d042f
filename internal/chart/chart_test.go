package chart

import (
	"bytes"
	"database/sql"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/lox/openwindow/internal/models"
)

func sampleDay(withAQI bool) Input {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	var samples []models.HourlySample
	for i := 0; i < 24; i++ {
		s := models.HourlySample{
			Time:                     start.Add(time.Duration(i) * time.Hour),
			OutdoorTempF:             sql.NullFloat64{Float64: 60 + float64(i), Valid: true},
			OutdoorDewPointF:         sql.NullFloat64{Float64: 50, Valid: true},
			PrecipitationMM:          sql.NullFloat64{Valid: true},
			PrecipitationProbability: sql.NullFloat64{Float64: float64(i * 3), Valid: true},
			PredictedIndoorRH:        sql.NullFloat64{Float64: 51, Valid: true},
		}
		if i == 12 {
			s.OutdoorTempF = sql.NullFloat64{}
		}
		if withAQI {
			s.AQI = sql.NullInt64{Int64: int64(20 + i*4), Valid: true}
		}
		samples = append(samples, s)
	}
	return Input{
		Title:        "Mon 2025-06-02",
		Samples:      samples,
		Intervals:    []models.Interval{{Start: start.Add(7 * time.Hour), End: start.Add(11 * time.Hour)}},
		Thresholds:   models.DefaultThresholds(),
		AQIAvailable: withAQI,
	}
}

func TestRender(t *testing.T) {
	for _, withAQI := range []bool{true, false} {
		data, err := Render(sampleDay(withAQI))
		if err != nil {
			t.Fatalf("Render(aqi=%v): %v", withAQI, err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if b := img.Bounds(); b.Dx() != Width || b.Dy() != Height {
			t.Errorf("bounds = %v", b)
		}
	}
}

func TestRenderShadesWindows(t *testing.T) {
	in := sampleDay(false)
	data, err := Render(in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	mainBottom := Height - marginBottom - aqiHeight - panelGap
	p := panel{
		rect:  image.Rect(marginLeft, marginTop, Width-marginRight, mainBottom),
		start: in.Samples[0].Time,
		end:   in.Samples[len(in.Samples)-1].Time.Add(time.Hour),
	}
	// A point inside the 07:00-11:00 window near the panel floor is tinted green.
	x := int(p.x(in.Samples[9].Time))
	y := mainBottom - 3
	r, g, b, _ := img.At(x, y).RGBA()
	if !(g > r && g > b) {
		t.Errorf("pixel (%d,%d) = %d,%d,%d, want green tint", x, y, r>>8, g>>8, b>>8)
	}
	// Outside the window it stays white.
	x = int(p.x(in.Samples[20].Time))
	r, g, b, _ = img.At(x, y).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("pixel (%d,%d) = %d,%d,%d, want white", x, y, r>>8, g>>8, b>>8)
	}
}

func TestRenderNoSamples(t *testing.T) {
	if _, err := Render(Input{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestCache(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache hit")
	}
	c.Set("a", []byte("png"))
	if got, ok := c.Get("a"); !ok || string(got) != "png" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry returned")
	}
	c.Set("b", []byte("png"))
	if len(c.entries) != 1 {
		t.Errorf("expired entries not pruned: %d left", len(c.entries))
	}
}
