// Package chart renders a day's forecast as a PNG: outdoor temperature,
// predicted indoor humidity and rain chance on top, air quality below, with
// the open-window intervals shaded.
package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/lox/openwindow/internal/metrics"
	"github.com/lox/openwindow/internal/models"
)

const (
	Width  = 800
	Height = 480

	marginLeft   = 48
	marginRight  = 16
	marginTop    = 28
	panelGap     = 36
	marginBottom = 28
	aqiHeight    = 110
)

var (
	background = color.RGBA{255, 255, 255, 255}
	gridColor  = color.RGBA{225, 225, 225, 255}
	textColor  = color.RGBA{50, 50, 50, 255}
	windowFill = color.NRGBA{46, 160, 67, 48}
	tempColor  = color.RGBA{214, 69, 65, 255}
	rhColor    = color.RGBA{52, 101, 164, 255}
	precipCol  = color.RGBA{120, 144, 156, 255}
	aqiColor   = color.RGBA{142, 68, 173, 255}
)

// Input is everything drawn for one day.
type Input struct {
	Title        string
	Samples      []models.HourlySample
	Intervals    []models.Interval
	Thresholds   models.Thresholds
	AQIAvailable bool
}

type panel struct {
	rect       image.Rectangle
	start, end time.Time
	lo, hi     float64
}

func (p panel) x(t time.Time) float32 {
	span := p.end.Sub(p.start)
	if span <= 0 {
		return float32(p.rect.Min.X)
	}
	frac := float64(t.Sub(p.start)) / float64(span)
	return float32(float64(p.rect.Min.X) + frac*float64(p.rect.Dx()))
}

func (p panel) y(v float64) float32 {
	frac := (v - p.lo) / (p.hi - p.lo)
	frac = math.Max(0, math.Min(1, frac))
	return float32(float64(p.rect.Max.Y) - frac*float64(p.rect.Dy()))
}

// Render draws in as a PNG.
func Render(in Input) ([]byte, error) {
	if len(in.Samples) == 0 {
		return nil, fmt.Errorf("render chart: no samples")
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	start := in.Samples[0].Time
	end := in.Samples[len(in.Samples)-1].Time.Add(time.Hour)

	mainBottom := Height - marginBottom - aqiHeight - panelGap
	lo, hi := valueRange(in)
	top := panel{
		rect:  image.Rect(marginLeft, marginTop, Width-marginRight, mainBottom),
		start: start, end: end, lo: lo, hi: hi,
	}
	aqiHi := 150.0
	for _, s := range in.Samples {
		if s.AQI.Valid {
			aqiHi = math.Max(aqiHi, float64(s.AQI.Int64)+10)
		}
	}
	bottom := panel{
		rect:  image.Rect(marginLeft, mainBottom+panelGap, Width-marginRight, Height-marginBottom),
		start: start, end: end, lo: 0, hi: aqiHi,
	}

	drawText(img, in.Title, marginLeft, 18, textColor)
	drawLegend(img)

	for _, p := range []panel{top, bottom} {
		drawGrid(img, p)
		for _, iv := range in.Intervals {
			fillRect(img, p.x(iv.Start), float32(p.rect.Min.Y), p.x(iv.End), float32(p.rect.Max.Y), windowFill)
		}
	}
	drawTimeAxis(img, bottom, in.Samples)

	th := in.Thresholds
	dashed(img, top, th.MinOutdoorTempF, tempColor)
	dashed(img, top, th.MaxOutdoorTempF, tempColor)
	dashed(img, top, th.MinIndoorRH, rhColor)
	dashed(img, top, th.MaxIndoorRH, rhColor)

	series(img, top, in.Samples, func(s models.HourlySample) (float64, bool) {
		return s.OutdoorTempF.Float64, s.OutdoorTempF.Valid
	}, tempColor)
	series(img, top, in.Samples, func(s models.HourlySample) (float64, bool) {
		return s.PredictedIndoorRH.Float64, s.PredictedIndoorRH.Valid
	}, rhColor)
	series(img, top, in.Samples, func(s models.HourlySample) (float64, bool) {
		return s.PrecipitationProbability.Float64, s.PrecipitationProbability.Valid
	}, precipCol)

	drawText(img, "AQI", 8, bottom.rect.Min.Y+12, textColor)
	if in.AQIAvailable {
		dashed(img, bottom, float64(th.MaxAQI), aqiColor)
		series(img, bottom, in.Samples, func(s models.HourlySample) (float64, bool) {
			return float64(s.AQI.Int64), s.AQI.Valid
		}, aqiColor)
	} else {
		drawText(img, "(AQI data not available)", bottom.rect.Min.X+bottom.rect.Dx()/2-84, bottom.rect.Min.Y+bottom.rect.Dy()/2, textColor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	metrics.ChartsRendered.Inc()
	return buf.Bytes(), nil
}

// valueRange covers percentages and the temperatures shown, with headroom.
func valueRange(in Input) (float64, float64) {
	lo, hi := 0.0, 100.0
	for _, s := range in.Samples {
		if s.OutdoorTempF.Valid {
			lo = math.Min(lo, s.OutdoorTempF.Float64-5)
			hi = math.Max(hi, s.OutdoorTempF.Float64+5)
		}
	}
	lo = math.Min(lo, in.Thresholds.MinOutdoorTempF-5)
	hi = math.Max(hi, in.Thresholds.MaxOutdoorTempF+5)
	return math.Floor(lo/10) * 10, math.Ceil(hi/10) * 10
}

func drawLegend(img *image.RGBA) {
	x := Width - marginRight - 420
	for _, item := range []struct {
		label string
		col   color.RGBA
	}{
		{"Outdoor °F", tempColor},
		{"Indoor RH %", rhColor},
		{"Rain chance %", precipCol},
		{"Open window", color.RGBA{46, 160, 67, 255}},
	} {
		fillRect(img, float32(x), 8, float32(x+10), 18, item.col)
		drawText(img, item.label, x+14, 18, textColor)
		x += 14 + len(item.label)*7 + 12
	}
}

func drawGrid(img *image.RGBA, p panel) {
	step := 20.0
	if p.hi-p.lo > 140 {
		step = 50
	}
	for v := math.Ceil(p.lo/step) * step; v <= p.hi; v += step {
		y := p.y(v)
		strokeLine(img, float32(p.rect.Min.X), y, float32(p.rect.Max.X), y, 1, gridColor)
		label := fmt.Sprintf("%.0f", v)
		drawText(img, label, p.rect.Min.X-6-len(label)*7, int(y)+4, textColor)
	}
}

func drawTimeAxis(img *image.RGBA, p panel, samples []models.HourlySample) {
	for _, s := range samples {
		if s.Time.Hour()%3 != 0 {
			continue
		}
		x := p.x(s.Time)
		strokeLine(img, x, float32(p.rect.Max.Y), x, float32(p.rect.Max.Y)+4, 1, textColor)
		label := s.Time.Format("3PM")
		drawText(img, label, int(x)-len(label)*7/2, p.rect.Max.Y+17, textColor)
	}
}

// series joins consecutive present values; a missing value breaks the line.
func series(img *image.RGBA, p panel, samples []models.HourlySample, value func(models.HourlySample) (float64, bool), col color.RGBA) {
	var (
		prevX, prevY float32
		havePrev     bool
	)
	for _, s := range samples {
		v, ok := value(s)
		if !ok {
			havePrev = false
			continue
		}
		x := p.x(s.Time.Add(30 * time.Minute))
		y := p.y(v)
		if havePrev {
			strokeLine(img, prevX, prevY, x, y, 2, col)
		} else {
			fillRect(img, x-1.5, y-1.5, x+1.5, y+1.5, col)
		}
		prevX, prevY, havePrev = x, y, true
	}
}

func dashed(img *image.RGBA, p panel, v float64, col color.RGBA) {
	if v < p.lo || v > p.hi {
		return
	}
	y := p.y(v)
	faded := color.NRGBA{col.R, col.G, col.B, 160}
	for x := float32(p.rect.Min.X); x < float32(p.rect.Max.X); x += 10 {
		strokeLine(img, x, y, float32(math.Min(float64(x+6), float64(p.rect.Max.X))), y, 1, faded)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 float32, col color.Color) {
	z := vector.NewRasterizer(Width, Height)
	z.DrawOp = draw.Over
	z.MoveTo(x0, y0)
	z.LineTo(x1, y0)
	z.LineTo(x1, y1)
	z.LineTo(x0, y1)
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(col), image.Point{})
}

// strokeLine rasterizes the segment as a quad of the given width.
func strokeLine(img *image.RGBA, x0, y0, x1, y1, width float32, col color.Color) {
	dx, dy := x1-x0, y1-y0
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2

	z := vector.NewRasterizer(Width, Height)
	z.DrawOp = draw.Over
	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(col), image.Point{})
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
