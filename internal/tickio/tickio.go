// Package tickio reads and writes tick histories, sweep events and outcome records
// as CSV files.
package tickio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rewired-gh/sweepscope/internal/models"
)

// CSVReader streams ticks from a CSV with a header naming ts, price, volume (or
// vol) and side columns. Extra columns are ignored.
type CSVReader struct {
	r    *csv.Reader
	cols map[string]int
	line int
}

// NewCSVReader reads and checks the header.
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read tick header: %w", err)
	}
	cols, err := columns(header, []string{"ts", "price", "volume", "side"}, map[string]string{"vol": "volume"})
	if err != nil {
		return nil, err
	}
	return &CSVReader{r: cr, cols: cols, line: 1}, nil
}

// Next returns the next tick, an error wrapping models.ErrMalformedInput for a bad
// row, or io.EOF.
func (c *CSVReader) Next() (models.Tick, error) {
	rec, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.Tick{}, io.EOF
		}
		return models.Tick{}, fmt.Errorf("read ticks: %w", err)
	}
	c.line++

	var t models.Tick
	fields := []struct {
		name string
		dst  *float64
	}{
		{"ts", &t.Ts},
		{"price", &t.Price},
		{"volume", &t.Volume},
	}
	for _, f := range fields {
		v, err := parseFloat(rec, c.cols[f.name])
		if err != nil {
			return models.Tick{}, fmt.Errorf("line %d: %s: %w", c.line, f.name, err)
		}
		*f.dst = v
	}
	side, err := models.ParseSide(field(rec, c.cols["side"]))
	if err != nil {
		return models.Tick{}, fmt.Errorf("line %d: %w", c.line, err)
	}
	t.Side = side
	if err := t.Validate(); err != nil {
		return models.Tick{}, fmt.Errorf("line %d: %w", c.line, err)
	}
	return t, nil
}

// ReadTicks loads every row. Any malformed row fails the whole load. The result
// is stable-sorted by timestamp. limit > 0 stops after that many rows.
func ReadTicks(r io.Reader, limit int) ([]models.Tick, error) {
	cr, err := NewCSVReader(r)
	if err != nil {
		return nil, err
	}
	var ticks []models.Tick
	for limit <= 0 || len(ticks) < limit {
		t, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Ts < ticks[j].Ts })
	return ticks, nil
}

// LoadTicks reads a tick CSV file.
func LoadTicks(path string, limit int) ([]models.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ticks: %w", err)
	}
	defer f.Close()
	ticks, err := ReadTicks(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ticks, nil
}

// OpenTicks opens a tick CSV file for streaming. The caller closes the file.
func OpenTicks(path string) (*CSVReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ticks: %w", err)
	}
	cr, err := NewCSVReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return cr, f, nil
}

var sweepColumns = []string{"ts_start", "ts_end", "direction", "price_start", "price_end", "volume_total"}

// ReadSweeps loads sweep events and sorts them by ts_end.
func ReadSweeps(r io.Reader) ([]models.SweepEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read sweep header: %w", err)
	}
	cols, err := columns(header, sweepColumns, nil)
	if err != nil {
		return nil, err
	}

	var events []models.SweepEvent
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sweeps: %w", err)
		}
		line++

		var vals [6]float64
		for i, name := range sweepColumns {
			v, err := parseFloat(rec, cols[name])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			vals[i] = v
		}
		if vals[2] != float64(int(vals[2])) {
			return nil, fmt.Errorf("line %d: %w: direction must be an integer", line, models.ErrMalformedInput)
		}
		dir := models.DirectionNone
		switch {
		case vals[2] > 0:
			dir = models.DirectionUp
		case vals[2] < 0:
			dir = models.DirectionDown
		}
		ev := models.SweepEvent{
			TsStart:     vals[0],
			TsEnd:       vals[1],
			Direction:   dir,
			PriceStart:  vals[3],
			PriceEnd:    vals[4],
			VolumeTotal: vals[5],
		}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TsEnd < events[j].TsEnd })
	return events, nil
}

// LoadSweeps reads a sweep CSV file.
func LoadSweeps(path string) ([]models.SweepEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sweeps: %w", err)
	}
	defer f.Close()
	events, err := ReadSweeps(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

func columns(header, required []string, aliases map[string]string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canon, ok := aliases[name]; ok {
			name = canon
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, r := range required {
		if _, ok := cols[r]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", models.ErrMalformedInput, r)
		}
	}
	return cols, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseFloat(rec []string, i int) (float64, error) {
	s := field(rec, i)
	if s == "" {
		return 0, fmt.Errorf("%w: empty field", models.ErrMalformedInput)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", models.ErrMalformedInput, s)
	}
	return v, nil
}
