package thermistor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResistance(t *testing.T) {
	tests := []struct {
		name    string
		v       float64
		d       Divider
		want    float64
		wantErr bool
	}{
		{name: "midpoint", v: 2.5, d: DefaultDivider, want: 10000},
		{name: "quarter", v: 1.25, d: DefaultDivider, want: 10000.0 / 3},
		{name: "zero volts", v: 0, d: DefaultDivider, want: 0},
		{name: "saturated", v: 5, d: DefaultDivider, wantErr: true},
		{name: "above supply", v: 5.2, d: DefaultDivider, wantErr: true},
		{name: "negative", v: -0.1, d: DefaultDivider, wantErr: true},
		{name: "NaN", v: math.NaN(), d: DefaultDivider, wantErr: true},
		{name: "zero R0", v: 1, d: Divider{VIn: 5, R0: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resistance(tt.v, tt.d)
			if tt.wantErr {
				var de *DomainError
				require.ErrorAs(t, err, &de)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestResistance_PositiveAndIncreasing(t *testing.T) {
	prev := 0.0
	for v := 0.01; v < 5; v += 0.01 {
		r, err := Resistance(v, DefaultDivider)
		require.NoError(t, err)
		assert.Greater(t, r, 0.0)
		assert.Greater(t, r, prev, "resistance must increase with voltage (v=%f)", v)
		prev = r
	}
}

func TestResistance_MidpointIsExact(t *testing.T) {
	r, err := Resistance(2.5, Divider{VIn: 5, R0: 10000})
	require.NoError(t, err)
	assert.Equal(t, 10000.0, r)
}

func TestTemperature(t *testing.T) {
	c := Coefficients(DefaultPooled)

	got, err := Temperature(10000, c)
	require.NoError(t, err)
	lnR := math.Log(10000)
	want := 1/(c.A+c.B*lnR+c.C*lnR*lnR*lnR) - KelvinOffset
	assert.Equal(t, want, got)
	assert.InDelta(t, 25.579, got, 0.001)

	again, err := Temperature(10000, c)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestTemperature_Domain(t *testing.T) {
	c := Coefficients(DefaultPooled)
	for _, rt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Temperature(rt, c)
		var de *DomainError
		assert.ErrorAs(t, err, &de, "rt=%v", rt)
	}

	_, err := Temperature(10000, Coefficients{A: -1})
	var de *DomainError
	assert.ErrorAs(t, err, &de)
}

func TestTemperature_DecreasesWithResistance(t *testing.T) {
	c := Coefficients(DefaultPooled)
	hot, err := Temperature(3000, c)
	require.NoError(t, err)
	cold, err := Temperature(30000, c)
	require.NoError(t, err)
	assert.Greater(t, hot, cold)
}

func TestConvert_EndToEnd(t *testing.T) {
	r, err := Convert(2.5, Divider{VIn: 5, R0: 10000}, Coefficients{A: 1.262740397e-3, B: 1.968014123e-4, C: 3.483432557e-7})
	require.NoError(t, err)
	assert.Equal(t, 2.5, r.Voltage)
	assert.Equal(t, 10000.0, r.Resistance)
	assert.InDelta(t, 25.579, r.Temperature, 0.001)
}

func TestConvert_Saturated(t *testing.T) {
	_, err := Convert(5.0, Divider{VIn: 5, R0: 10000}, Coefficients(DefaultPooled))
	var de *DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "resistance", de.Op)
	assert.Equal(t, 5.0, de.Value)
}

func TestDomainError_Message(t *testing.T) {
	err := error(&DomainError{Op: "ln", Value: -2})
	assert.Equal(t, "thermistor: ln undefined for -2", err.Error())
	assert.True(t, errors.As(err, new(*DomainError)))
}

func TestResistanceAt_InvertsTemperature(t *testing.T) {
	coeffs := []Coefficients{
		Coefficients(DefaultPooled),
		DefaultIndividual[3],
		{A: 3.354016e-3, B: 2.56985e-4}, // beta-only, c = 0
	}
	for _, c := range coeffs {
		for _, celsius := range []float64{-20, 0, 25, 60, 120} {
			rt, err := ResistanceAt(celsius, c)
			require.NoError(t, err)
			assert.Greater(t, rt, 0.0)

			back, err := Temperature(rt, c)
			require.NoError(t, err)
			assert.InDelta(t, celsius, back, 1e-6)
		}
	}
}

func TestResistanceAt_BelowAbsoluteZero(t *testing.T) {
	_, err := ResistanceAt(-300, Coefficients(DefaultPooled))
	var domainErr *DomainError
	assert.True(t, errors.As(err, &domainErr))
}

func TestVoltage_InvertsResistance(t *testing.T) {
	for _, v := range []float64{0.1, 1, 2.5, 4.9} {
		rt, err := Resistance(v, DefaultDivider)
		require.NoError(t, err)
		assert.InDelta(t, v, Voltage(rt, DefaultDivider), 1e-12)
	}
}
