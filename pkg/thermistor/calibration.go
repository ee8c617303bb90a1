package thermistor

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Calibration resolves the coefficient triple for a channel.
// Channels are 1-based, matching the labels on the thermistor harness.
type Calibration interface {
	Coefficients(channel int) (Coefficients, error)
}

var (
	_ Calibration = Pooled{}
	_ Calibration = Individual(nil)
)

// Pooled applies one coefficient triple to every channel.
type Pooled Coefficients

// Coefficients implements Calibration.
func (p Pooled) Coefficients(int) (Coefficients, error) {
	return Coefficients(p), nil
}

// Individual maps each channel to its own coefficient triple.
type Individual map[int]Coefficients

// Coefficients implements Calibration.
func (ind Individual) Coefficients(channel int) (Coefficients, error) {
	c, ok := ind[channel]
	if !ok {
		return Coefficients{}, &MissingProfileError{Channel: channel}
	}
	return c, nil
}

// Channels returns the calibrated channels in ascending order.
func (ind Individual) Channels() []int {
	return slices.Sorted(maps.Keys(ind))
}

// DefaultPooled is the batch-wide fit of the lab thermistors.
var DefaultPooled = Pooled{A: 1.262740397e-3, B: 1.968014123e-4, C: 3.483432557e-7}

// DefaultIndividual holds the per-thermistor fits for harness channels 1-8.
var DefaultIndividual = Individual{
	1: {A: 1.205128477e-3, B: 2.094565574e-4, C: 2.741892606e-7},
	2: {A: 1.406532446e-3, B: 1.754768206e-4, C: 4.163535932e-7},
	3: {A: 1.330672717e-3, B: 1.836781719e-4, C: 4.147272317e-7},
	4: {A: 1.180427397e-3, B: 2.073609455e-4, C: 3.274716749e-7},
	5: {A: 1.149354211e-3, B: 2.181719930e-4, C: 2.444470918e-7},
	6: {A: 1.430276584e-3, B: 1.709819755e-4, C: 4.385882308e-7},
	7: {A: 1.309786804e-3, B: 1.865957075e-4, C: 4.072690163e-7},
	8: {A: 1.139845262e-3, B: 2.144059319e-4, C: 2.970712604e-7},
}

// ConvertChannel converts a channel voltage with the coefficients cal holds
// for that channel.
func ConvertChannel(channel int, v float64, d Divider, cal Calibration) (Reading, error) {
	c, err := cal.Coefficients(channel)
	if err != nil {
		return Reading{}, err
	}
	r, err := Convert(v, d, c)
	if err != nil {
		return Reading{}, fmt.Errorf("channel %d: %w", channel, err)
	}
	r.Channel = channel
	return r, nil
}

// Difference returns T_p - T_q for the same channel voltage. It is exactly
// zero when p and q resolve to the same coefficients.
func Difference(channel int, v float64, d Divider, p, q Calibration) (float64, error) {
	rp, err := ConvertChannel(channel, v, d, p)
	if err != nil {
		return 0, err
	}
	rq, err := ConvertChannel(channel, v, d, q)
	if err != nil {
		return 0, err
	}
	return rp.Temperature - rq.Temperature, nil
}

// Point is one calibration reference: a resistance measured at a known
// temperature.
type Point struct {
	Celsius    float64
	Resistance float64
}

// Fit solves the Steinhart-Hart coefficients passing exactly through three
// calibration points.
func Fit(p1, p2, p3 Point) (Coefficients, error) {
	for _, p := range []Point{p1, p2, p3} {
		if p.Resistance <= 0 {
			return Coefficients{}, &DomainError{Op: "ln", Value: p.Resistance}
		}
		if p.Celsius <= -KelvinOffset {
			return Coefficients{}, &DomainError{Op: "kelvin", Value: p.Celsius}
		}
	}

	invT1 := 1 / (p1.Celsius + KelvinOffset)
	invT2 := 1 / (p2.Celsius + KelvinOffset)
	invT3 := 1 / (p3.Celsius + KelvinOffset)

	l1 := math.Log(p1.Resistance)
	l2 := math.Log(p2.Resistance)
	l3 := math.Log(p3.Resistance)

	l12 := l1 - l2
	l13 := l1 - l3
	if l12 == 0 || l13 == 0 {
		return Coefficients{}, fmt.Errorf("thermistor: calibration points need distinct resistances")
	}

	cube12 := l1*l1*l1 - l2*l2*l2
	cube13 := l1*l1*l1 - l3*l3*l3
	den := cube12 - cube13*l12/l13
	if den == 0 {
		return Coefficients{}, fmt.Errorf("thermistor: calibration points are degenerate")
	}

	c := (invT1 - invT2 - (invT1-invT3)*l12/l13) / den
	b := (invT1 - invT2 - c*cube12) / l12
	a := invT1 - b*l1 - c*l1*l1*l1

	return Coefficients{A: a, B: b, C: c}, nil
}
