package tickio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rewired-gh/sweepscope/internal/models"
)

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTicks writes ticks as ts,price,volume,side with side B or S.
func WriteTicks(w io.Writer, ticks []models.Tick) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ts", "price", "volume", "side"}); err != nil {
		return err
	}
	for _, t := range ticks {
		if err := cw.Write([]string{ff(t.Ts), ff(t.Price), ff(t.Volume), t.Side.Code()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSweeps writes events with the same columns ReadSweeps expects.
func WriteSweeps(w io.Writer, events []models.SweepEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sweepColumns); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{
			ff(e.TsStart), ff(e.TsEnd), strconv.Itoa(int(e.Direction)),
			ff(e.PriceStart), ff(e.PriceEnd), ff(e.VolumeTotal),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOutcomes writes direction,ret_h,mfe_h,mae_h,volume_total. Returns are fractions.
func WriteOutcomes(w io.Writer, records []models.OutcomeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"direction", "ret_h", "mfe_h", "mae_h", "volume_total"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{strconv.Itoa(int(r.Direction)), ff(r.RetH), ff(r.MFEH), ff(r.MAEH), ff(r.VolumeTotal)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path (and its directory) and runs write against it.
func WriteFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
