package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/config"
	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/store"
	"github.com/itohio/thermdaq/pkg/thermistor"
)

// refPoint is a reference temperature held at a log time.
type refPoint struct {
	Time    float64
	Celsius float64
}

// runCalibrate fits per-channel coefficients from a resistance log and three
// reference temperatures, and writes them as a config fragment.
func runCalibrate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	var (
		logFlag    = fs.String("log", "", "Resistance log (csv, tsv or txt)")
		formatFlag = fs.String("format", "", "Log format override: csv or tsv")
		sqliteFlag = fs.String("sqlite", "", "Read the log from this SQLite database instead")
		tableFlag  = fs.String("table", "samples", "SQLite table name")
		pointsFlag = fs.String("points", "", "Three time=celsius pairs, e.g. 0=0.1,600=25,1200=50")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	points, err := parsePoints(*pointsFlag)
	if err != nil {
		return err
	}

	rows, err := readLog(*logFlag, *formatFlag, *sqliteFlag, *tableFlag)
	if err != nil {
		return err
	}

	coeffs, err := fitChannels(rows, points)
	if err != nil {
		return err
	}
	klog.InfoS("Calibrated channels", "count", len(coeffs))

	fragment := struct {
		Calibration struct {
			Mode       string                          `yaml:"mode"`
			Individual map[int]thermistor.Coefficients `yaml:"individual"`
		} `yaml:"calibration"`
	}{}
	fragment.Calibration.Mode = config.ModeIndividual
	fragment.Calibration.Individual = coeffs

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(fragment); err != nil {
		return err
	}
	return enc.Close()
}

func readLog(path, format, sqlitePath, table string) ([]record.Row, error) {
	if sqlitePath != "" {
		db, err := store.Open(sqlitePath, table)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.Tail(0)
	}

	if path == "" {
		return nil, errors.New("either -log or -sqlite is required")
	}
	f := record.Format(format)
	if f == "" {
		f = record.FormatFromPath(path)
	}
	_, rows, err := record.ReadAll(path, f)
	return rows, err
}

// parsePoints parses "t1=c1,t2=c2,t3=c3".
func parsePoints(s string) ([3]refPoint, error) {
	var points [3]refPoint
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return points, fmt.Errorf("need exactly 3 reference points, got %d", len(parts))
	}
	for i, p := range parts {
		t, c, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			return points, fmt.Errorf("invalid reference point %q", p)
		}
		tv, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return points, fmt.Errorf("invalid reference time %q: %w", t, err)
		}
		cv, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return points, fmt.Errorf("invalid reference temperature %q: %w", c, err)
		}
		points[i] = refPoint{Time: tv, Celsius: cv}
	}
	return points, nil
}

// fitChannels fits every res column of rows against the reference points,
// taking the resistance from the row nearest each reference time.
func fitChannels(rows []record.Row, points [3]refPoint) (map[int]thermistor.Coefficients, error) {
	if len(rows) == 0 {
		return nil, errors.New("log has no rows")
	}

	var idx [3]int
	for i, p := range points {
		idx[i] = nearestRow(rows, p.Time)
	}

	out := make(map[int]thermistor.Coefficients)
	for _, field := range rows[0].Fields {
		digits, ok := strings.CutPrefix(field, string(record.Res))
		if !ok {
			continue
		}
		ch, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}

		var fit [3]thermistor.Point
		for i, p := range points {
			r, _ := rows[idx[i]].Value(field)
			fit[i] = thermistor.Point{Celsius: p.Celsius, Resistance: r}
		}
		c, err := thermistor.Fit(fit[0], fit[1], fit[2])
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		out[ch] = c
	}

	if len(out) == 0 {
		return nil, errors.New("log has no resistance columns")
	}
	return out, nil
}

func nearestRow(rows []record.Row, t float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, r := range rows {
		if d := math.Abs(r.Time() - t); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
