package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrCheckpointMismatch means a persisted checkpoint disagrees with the
// requested run parameters. The run must not start; the operator either
// fixes the parameters or deletes the checkpoint.
var ErrCheckpointMismatch = errors.New("batch: checkpoint does not match run parameters")

var checkpointHeader = []string{
	"elec_num", "elec_use_num", "elec_num_N", "elec_use_num_N", "coin_num_N", "timestamp",
}

// Checkpoint records batch progress after every completed cell. Presence
// of the file on disk signals a run in progress.
type Checkpoint struct {
	Bottles        int       `json:"bottles"`
	UnitsPerBottle int       `json:"units_per_bottle"`
	BottleIndex    int       `json:"bottle_index"`
	UnitIndex      int       `json:"unit_index"`
	TotalCompleted int       `json:"total_completed"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate checks the internal position invariant and the match against
// the requested run parameters.
func (c Checkpoint) Validate(p Params) error {
	if c.TotalCompleted != c.BottleIndex*c.UnitsPerBottle+c.UnitIndex {
		return fmt.Errorf("batch: corrupt checkpoint: total %d does not match position (%d,%d)",
			c.TotalCompleted, c.BottleIndex, c.UnitIndex)
	}
	if c.Bottles != p.Bottles || c.UnitsPerBottle != p.UnitsPerBottle {
		return fmt.Errorf("%w: persisted (%d,%d), requested (%d,%d)",
			ErrCheckpointMismatch, c.Bottles, c.UnitsPerBottle, p.Bottles, p.UnitsPerBottle)
	}
	return nil
}

// CheckpointStore persists the checkpoint as a single-row CSV file.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (s *CheckpointStore) Path() string {
	return s.path
}

// Load reads the persisted checkpoint. Returns (nil, nil) when no
// checkpoint file exists.
func (s *CheckpointStore) Load() (*Checkpoint, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	if len(records) < 2 || len(records[1]) != len(checkpointHeader) {
		return nil, fmt.Errorf("parse checkpoint: malformed file %s", s.path)
	}

	row := records[1]
	fields := make([]int, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(row[i])
		if err != nil {
			return nil, fmt.Errorf("parse checkpoint field %s: %w", checkpointHeader[i], err)
		}
		fields[i] = v
	}
	ts, err := time.Parse(time.RFC3339, row[5])
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint timestamp: %w", err)
	}

	return &Checkpoint{
		Bottles:        fields[0],
		UnitsPerBottle: fields[1],
		BottleIndex:    fields[2],
		UnitIndex:      fields[3],
		TotalCompleted: fields[4],
		Timestamp:      ts,
	}, nil
}

// Save atomically replaces the checkpoint file. A crash during the write
// leaves either the previous checkpoint or the new one, never a partial
// file.
func (s *CheckpointStore) Save(c Checkpoint) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	rows := [][]string{
		checkpointHeader,
		{
			strconv.Itoa(c.Bottles),
			strconv.Itoa(c.UnitsPerBottle),
			strconv.Itoa(c.BottleIndex),
			strconv.Itoa(c.UnitIndex),
			strconv.Itoa(c.TotalCompleted),
			c.Timestamp.Format(time.RFC3339),
		},
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file. Missing file is not an error.
func (s *CheckpointStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
