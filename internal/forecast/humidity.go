package forecast

import (
	"database/sql"
	"math"
)

// Magnus coefficients (Sonntag 1990) over water.
const (
	magnusA    = 17.62
	magnusB    = 243.12 // °C
	magnusBase = 6.112  // hPa
)

func FToC(f float64) float64 {
	return (f - 32) * 5 / 9
}

func CToF(c float64) float64 {
	return c*9/5 + 32
}

// vaporPressure returns the saturation vapour pressure in hPa at tempC.
func vaporPressure(tempC float64) float64 {
	return magnusBase * math.Exp((magnusA*tempC)/(magnusB+tempC))
}

// RelativeHumidity returns the relative humidity (%) of air at tempC whose dew
// point is dewPointC, clamped to [0, 100]. ok is false when the inputs fall
// outside the formula's domain.
func RelativeHumidity(tempC, dewPointC float64) (rh float64, ok bool) {
	es := vaporPressure(tempC)
	if es <= 0 || math.IsNaN(es) || math.IsInf(es, 0) {
		return 0, false
	}
	e := vaporPressure(dewPointC)
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return 0, false
	}

	rh = 100 * e / es
	if math.IsNaN(rh) {
		return 0, false
	}
	return math.Min(math.Max(rh, 0), 100), true
}

// PredictIndoorRH estimates indoor relative humidity when outdoor air with the
// given dew point is warmed (or cooled) to the indoor reference temperature.
// The absolute moisture content is assumed unchanged.
func PredictIndoorRH(indoorRefTempF, outdoorDewPointF sql.NullFloat64) sql.NullFloat64 {
	if !indoorRefTempF.Valid || !outdoorDewPointF.Valid {
		return sql.NullFloat64{}
	}
	rh, ok := RelativeHumidity(FToC(indoorRefTempF.Float64), FToC(outdoorDewPointF.Float64))
	if !ok {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: rh, Valid: true}
}
