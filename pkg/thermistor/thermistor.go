// Package thermistor converts voltage-divider readings into thermistor
// resistance and temperature using the Steinhart-Hart equation.
//
// Every function in this package is pure: the same inputs always produce the
// same outputs and nothing is cached between calls.
package thermistor

import (
	"fmt"
	"math"
)

// KelvinOffset is the offset between Kelvin and Celsius.
const KelvinOffset = 273.15

// Divider describes the voltage divider in front of the ADC input.
// The thermistor sits on the measured (low) side, R0 on the supply side.
type Divider struct {
	VIn float64 // Supply voltage (V)
	R0  float64 // Fixed reference resistance (Ohm)
}

// DefaultDivider is the 5 V / 10 kOhm divider used on the lab boards.
var DefaultDivider = Divider{VIn: 5, R0: 10000}

// Coefficients is one Steinhart-Hart coefficient triple.
type Coefficients struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`
}

// Reading is the result of converting one channel voltage.
type Reading struct {
	Channel     int
	Voltage     float64 // V
	Resistance  float64 // Ohm
	Temperature float64 // °C
}

// DomainError reports an input for which the conversion math is undefined.
// Saturated readings (v >= VIn) are always an error, never +Inf.
type DomainError struct {
	Op    string
	Value float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("thermistor: %s undefined for %g", e.Op, e.Value)
}

// MissingProfileError is returned when an individual calibration has no
// coefficients for a channel.
type MissingProfileError struct {
	Channel int
}

func (e *MissingProfileError) Error() string {
	return fmt.Sprintf("thermistor: no calibration profile for channel %d", e.Channel)
}

// Resistance returns the thermistor resistance for the measured voltage v:
//
//	Rt = v * R0 / (VIn - v)
func Resistance(v float64, d Divider) (float64, error) {
	if math.IsNaN(v) || v < 0 || v >= d.VIn {
		return 0, &DomainError{Op: "resistance", Value: v}
	}
	if d.R0 <= 0 {
		return 0, &DomainError{Op: "resistance: reference R0", Value: d.R0}
	}
	return (v * d.R0) / (d.VIn - v), nil
}

// Temperature applies the Steinhart-Hart equation to rt and returns °C:
//
//	1/T = a + b*ln(rt) + c*ln(rt)^3
func Temperature(rt float64, c Coefficients) (float64, error) {
	if math.IsNaN(rt) || rt <= 0 || math.IsInf(rt, 0) {
		return 0, &DomainError{Op: "ln", Value: rt}
	}
	lnR := math.Log(rt)
	inv := c.A + c.B*lnR + c.C*lnR*lnR*lnR
	if inv <= 0 {
		return 0, &DomainError{Op: "inverse temperature", Value: inv}
	}
	return 1/inv - KelvinOffset, nil
}

// Convert computes both resistance and temperature for one voltage.
func Convert(v float64, d Divider, c Coefficients) (Reading, error) {
	rt, err := Resistance(v, d)
	if err != nil {
		return Reading{}, err
	}
	t, err := Temperature(rt, c)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Voltage: v, Resistance: rt, Temperature: t}, nil
}
