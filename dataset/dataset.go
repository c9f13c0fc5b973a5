// Package dataset reads and writes measurement files with ground truth.
//
// Every non-empty line that does not start with # holds one measurement:
//
//	L	px	py	timestamp	gt_px	gt_py	gt_vx	gt_vy
//	R	rho	phi	rho_dot	timestamp	gt_px	gt_py	gt_vx	gt_vy
//
// Fields are separated by tabs or spaces and timestamps are in microseconds.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	fusion "github.com/milosgajdos/go-fusion"
	"gonum.org/v1/gonum/mat"
)

// TruthDim is ground truth vector dimension: [px, py, vx, vy]
const TruthDim = 4

// Record is a measurement paired with ground truth
type Record struct {
	// Measurement is sensor measurement
	Measurement *fusion.Measurement
	// Truth is ground truth [px, py, vx, vy] at measurement time
	Truth *mat.VecDense
}

var sensorTags = map[string]fusion.SensorType{
	"L": fusion.Lidar,
	"R": fusion.Radar,
}

// Read parses records from r and returns them.
// It returns error with the offending line number if any line is malformed.
func Read(r io.Reader) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		rec, err := parseRecord(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	return records, nil
}

func parseRecord(fields []string) (Record, error) {
	sensor, ok := sensorTags[fields[0]]
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown sensor tag %q", fusion.ErrInvalidMeasurement, fields[0])
	}

	dim := sensor.Dim()
	if want := 1 + dim + 1 + TruthDim; len(fields) != want {
		return Record{}, fmt.Errorf("%w: %v record expects %d fields, got %d",
			fusion.ErrInvalidMeasurement, sensor, want, len(fields))
	}

	raw, err := parseFloats(fields[1 : 1+dim])
	if err != nil {
		return Record{}, err
	}

	ts, err := strconv.ParseInt(fields[1+dim], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", fields[1+dim], err)
	}

	truth, err := parseFloats(fields[2+dim:])
	if err != nil {
		return Record{}, err
	}

	m := &fusion.Measurement{
		Sensor:    sensor,
		Raw:       mat.NewVecDense(dim, raw),
		Timestamp: ts,
	}
	if err := m.Validate(); err != nil {
		return Record{}, err
	}

	return Record{
		Measurement: m,
		Truth:       mat.NewVecDense(TruthDim, truth),
	}, nil
}

func parseFloats(fields []string) ([]float64, error) {
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", f, err)
		}
		vals[i] = v
	}

	return vals, nil
}

// Write writes records to w in the format understood by Read.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)

	for i, rec := range records {
		m := rec.Measurement
		if err := m.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if rec.Truth == nil || rec.Truth.Len() != TruthDim {
			return fmt.Errorf("record %d: invalid ground truth", i)
		}

		var tag string
		for t, s := range sensorTags {
			if s == m.Sensor {
				tag = t
			}
		}

		fields := []string{tag}
		for j := 0; j < m.Raw.Len(); j++ {
			fields = append(fields, formatFloat(m.Raw.AtVec(j)))
		}
		fields = append(fields, strconv.FormatInt(m.Timestamp, 10))
		for j := 0; j < TruthDim; j++ {
			fields = append(fields, formatFloat(rec.Truth.AtVec(j)))
		}

		if _, err := fmt.Fprintln(bw, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
