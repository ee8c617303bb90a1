package thermistor

import "math"

// ResistanceAt inverts the Steinhart-Hart equation, returning the resistance
// a thermistor with coefficients c has at the given temperature.
func ResistanceAt(celsius float64, c Coefficients) (float64, error) {
	if celsius <= -KelvinOffset {
		return 0, &DomainError{Op: "kelvin", Value: celsius}
	}
	invT := 1 / (celsius + KelvinOffset)

	var lnR float64
	if c.C != 0 {
		// Cardano for c*x^3 + b*x + (a - 1/T) = 0.
		y := (c.A - invT) / (2 * c.C)
		x := math.Sqrt(math.Pow(c.B/(3*c.C), 3) + y*y)
		lnR = math.Cbrt(x-y) - math.Cbrt(x+y)
	} else {
		if c.B == 0 {
			return 0, &DomainError{Op: "inverse with b=0", Value: c.B}
		}
		lnR = (invT - c.A) / c.B
	}
	r := math.Exp(lnR)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, &DomainError{Op: "inverse", Value: celsius}
	}
	return r, nil
}

// Voltage returns the divider output for a thermistor resistance rt.
// It is the inverse of Resistance.
func Voltage(rt float64, d Divider) float64 {
	return d.VIn * rt / (rt + d.R0)
}
