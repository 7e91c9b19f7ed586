package batch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var resultHeader = []string{
	"Time", "open_circuit_voltage", "pole_weight", "assembly_time",
	"assembly_pressure", "electrolyte_volume", "coin_num",
	"electrolyte_code", "coin_cell_code",
}

// ResultLog appends one row per assembled cell to a daily CSV file named
// date_YYYYMMDD.csv under the data directory.
type ResultLog struct {
	dir string
	now func() time.Time
}

func NewResultLog(dir string) *ResultLog {
	return &ResultLog{dir: dir, now: time.Now}
}

func (l *ResultLog) fileFor(t time.Time) string {
	return filepath.Join(l.dir, "date_"+t.Format("20060102")+".csv")
}

// Append writes one result row, creating the daily file with its header
// row on first use.
func (l *ResultLog) Append(r UnitResult) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}

	path := l.fileFor(l.now())
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open result log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(resultHeader); err != nil {
			return fmt.Errorf("write result header: %w", err)
		}
	}

	row := []string{
		r.Time.Format("2006-01-02 15:04:05"),
		formatFloat(r.OpenCircuitVoltage),
		formatFloat(r.PoleWeight),
		formatFloat(r.AssemblyTime),
		formatFloat(r.AssemblyPressure),
		formatFloat(r.ElectrolyteVolume),
		strconv.Itoa(r.CoinNum),
		r.ElectrolyteCode,
		r.CoinCellCode,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write result row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
