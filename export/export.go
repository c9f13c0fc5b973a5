package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	fusion "github.com/milosgajdos/go-fusion"
)

// StateNames are CTRV state component names used in export headers
var StateNames = []string{"px", "py", "v", "yaw", "yaw_rate"}

// Row is a single exported tracker estimate
type Row struct {
	// Timestamp is measurement time in microseconds
	Timestamp int64
	// Sensor is the sensor whose measurement produced the estimate
	Sensor fusion.SensorType
	// Estimate is the tracker estimate after the update
	Estimate fusion.Estimate
	// NIS is normalized innovation squared of the update
	NIS float64
}

// Exporter exports tracker estimates
type Exporter interface {
	// Write writes a single row
	Write(*Row) error
	// Close flushes and closes the exporter
	Close() error
}

// CSVExporter writes estimates with their 2 sigma bounds as CSV
type CSVExporter struct {
	w *csv.Writer
	c io.Closer
}

// NewCSVExporter creates new CSVExporter writing to w and returns it.
// The header line is written immediately. If w is an io.Closer it is closed by Close.
func NewCSVExporter(w io.Writer) (*CSVExporter, error) {
	hdr := []string{"timestamp", "sensor"}
	for _, name := range StateNames {
		hdr = append(hdr, name, name+"+2s", name+"-2s")
	}
	hdr = append(hdr, "nis")

	cw := csv.NewWriter(w)
	if err := cw.Write(hdr); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	e := &CSVExporter{w: cw}
	if c, ok := w.(io.Closer); ok {
		e.c = c
	}

	return e, nil
}

// NewCSVFileExporter creates file at path and returns CSVExporter writing to it
func NewCSVFileExporter(path string) (*CSVExporter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	e, err := NewCSVExporter(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return e, nil
}

// Write writes the row to the CSV output.
func (e *CSVExporter) Write(r *Row) error {
	val, cov := r.Estimate.Val(), r.Estimate.Cov()
	if val.Len() != len(StateNames) {
		return fmt.Errorf("invalid estimate dimension: %d", val.Len())
	}

	rec := []string{strconv.FormatInt(r.Timestamp, 10), r.Sensor.String()}
	for i := 0; i < val.Len(); i++ {
		v := val.AtVec(i)
		sigma2 := 2 * math.Sqrt(cov.At(i, i))
		rec = append(rec, formatFloat(v), formatFloat(v+sigma2), formatFloat(v-sigma2))
	}
	rec = append(rec, formatFloat(r.NIS))

	return e.w.Write(rec)
}

// Close flushes buffered rows and closes the underlying writer.
func (e *CSVExporter) Close() error {
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return err
	}

	if e.c != nil {
		return e.c.Close()
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
