package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type paramCall struct {
	bottle    int
	remaining int
}

// scriptedController records the exchanges the engine drives and can be
// told to fail at a given sequence number.
type scriptedController struct {
	params    []paramCall
	collected []int
	completes int
	failAt    int // sequence that fails; -1 never fails
}

func newScriptedController() *scriptedController {
	return &scriptedController{failAt: -1}
}

func (c *scriptedController) SendParameters(_ context.Context, bottle, remaining int, _ Recipe) error {
	c.params = append(c.params, paramCall{bottle, remaining})
	return nil
}

func (c *scriptedController) CollectUnit(_ context.Context, sequence int) (UnitResult, error) {
	if sequence == c.failAt {
		return UnitResult{}, errors.New("link dropped")
	}
	c.collected = append(c.collected, sequence)
	return UnitResult{
		OpenCircuitVoltage: 3.2,
		PoleWeight:         0.45,
		CoinNum:            sequence + 1,
		CoinCellCode:       fmt.Sprintf("CELL%04d", sequence),
		ElectrolyteCode:    "ELEC01",
	}, nil
}

func (c *scriptedController) SignalComplete(context.Context) error {
	c.completes++
	return nil
}

func newTestEngine(t *testing.T, ctrl Controller) (*Engine, *CheckpointStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewCheckpointStore(filepath.Join(dir, "checkpoint.csv"))
	engine := NewEngine(ctrl, store, NewResultLog(dir), zap.NewNop())
	return engine, store, dir
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunSingleUnit(t *testing.T) {
	ctrl := newScriptedController()
	engine, store, dir := newTestEngine(t, ctrl)

	summary, err := engine.Run(context.Background(), Params{Bottles: 1, UnitsPerBottle: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Completed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 0, summary.Results[0].Sequence)
	assert.False(t, summary.Resumed)

	assert.Equal(t, []paramCall{{0, 1}}, ctrl.params)
	assert.Equal(t, []int{0}, ctrl.collected)
	assert.Equal(t, 1, ctrl.completes)

	// Checkpoint deleted on success, one result row behind the header.
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
	rows := readCSV(t, filepath.Join(dir, "date_"+time.Now().Format("20060102")+".csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, resultHeader, rows[0])
	assert.Equal(t, "CELL0000", rows[1][8])
}

func TestRunEmptyBatch(t *testing.T) {
	ctrl := newScriptedController()
	engine, _, _ := newTestEngine(t, ctrl)

	for _, params := range []Params{{Bottles: 0, UnitsPerBottle: 4}, {Bottles: 3, UnitsPerBottle: 0}} {
		summary, err := engine.Run(context.Background(), params)
		require.NoError(t, err)
		assert.Zero(t, summary.Total)
		assert.Empty(t, summary.Results)
	}
	assert.Empty(t, ctrl.params)
	assert.Zero(t, ctrl.completes)
}

func TestRunResumeIdempotence(t *testing.T) {
	params := Params{Bottles: 3, UnitsPerBottle: 4}

	ctrl := newScriptedController()
	ctrl.failAt = 5
	engine, store, dir := newTestEngine(t, ctrl)

	summary, err := engine.Run(context.Background(), params)
	require.Error(t, err)
	assert.Equal(t, 5, summary.Completed)
	require.Len(t, summary.Results, 5)

	// Checkpoint sits at the last completed unit.
	cp, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 1, cp.BottleIndex)
	assert.Equal(t, 1, cp.UnitIndex)
	assert.Equal(t, 5, cp.TotalCompleted)

	// Resume with identical parameters against the same data dir.
	ctrl2 := newScriptedController()
	engine2 := NewEngine(ctrl2, store, NewResultLog(dir), zap.NewNop())
	summary2, err := engine2.Run(context.Background(), params)
	require.NoError(t, err)

	assert.True(t, summary2.Resumed)
	assert.Equal(t, 12, summary2.Completed)
	require.Len(t, summary2.Results, 7)
	assert.Equal(t, 5, summary2.Results[0].Sequence)

	// First resumed bottle announces only its remaining units.
	require.NotEmpty(t, ctrl2.params)
	assert.Equal(t, paramCall{1, 3}, ctrl2.params[0])
	assert.Equal(t, []paramCall{{1, 3}, {2, 4}}, ctrl2.params)

	// Result log: 12 rows, sequence order, no duplicates or gaps.
	rows := readCSV(t, filepath.Join(dir, "date_"+time.Now().Format("20060102")+".csv"))
	require.Len(t, rows, 13)
	seen := map[string]bool{}
	for _, row := range rows[1:] {
		code := row[8]
		assert.False(t, seen[code], "duplicate result row %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, 12)

	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 1, ctrl2.completes)
}

func TestRunCheckpointMismatch(t *testing.T) {
	ctrl := newScriptedController()
	engine, store, _ := newTestEngine(t, ctrl)

	require.NoError(t, store.Save(Checkpoint{
		Bottles: 3, UnitsPerBottle: 4,
		BottleIndex: 1, UnitIndex: 1, TotalCompleted: 5,
		Timestamp: time.Now(),
	}))

	summary, err := engine.Run(context.Background(), Params{Bottles: 2, UnitsPerBottle: 4})
	require.ErrorIs(t, err, ErrCheckpointMismatch)
	assert.Zero(t, summary.Completed)

	// No handshakes were attempted and the checkpoint survives.
	assert.Empty(t, ctrl.params)
	assert.Empty(t, ctrl.collected)
	cp, loadErr := store.Load()
	require.NoError(t, loadErr)
	require.NotNil(t, cp)
}

func TestRunResumeAtBottleBoundary(t *testing.T) {
	params := Params{Bottles: 2, UnitsPerBottle: 2}
	ctrl := newScriptedController()
	engine, store, _ := newTestEngine(t, ctrl)

	// Interrupted run finished bottle 0 exactly.
	require.NoError(t, store.Save(Checkpoint{
		Bottles: 2, UnitsPerBottle: 2,
		BottleIndex: 0, UnitIndex: 2, TotalCompleted: 2,
		Timestamp: time.Now(),
	}))

	summary, err := engine.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Completed)
	assert.Equal(t, []paramCall{{1, 2}}, ctrl.params)
	assert.Equal(t, []int{2, 3}, ctrl.collected)
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.csv"))

	in := Checkpoint{
		Bottles: 3, UnitsPerBottle: 4,
		BottleIndex: 2, UnitIndex: 3, TotalCompleted: 11,
		Timestamp: time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in, *out)
}

func TestCheckpointLoadAbsent(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.csv"))
	cp, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpointValidateCorruptTotal(t *testing.T) {
	cp := Checkpoint{Bottles: 3, UnitsPerBottle: 4, BottleIndex: 1, UnitIndex: 1, TotalCompleted: 7}
	err := cp.Validate(Params{Bottles: 3, UnitsPerBottle: 4})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCheckpointMismatch)
}

func TestResultLogHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	log := NewResultLog(dir)
	fixed := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(UnitResult{
			Sequence: i, Time: fixed,
			OpenCircuitVoltage: 3.21, CoinNum: i + 1,
			ElectrolyteCode: "ELEC01", CoinCellCode: fmt.Sprintf("C%03d", i),
		}))
	}

	rows := readCSV(t, filepath.Join(dir, "date_20260830.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, resultHeader, rows[0])
	assert.Equal(t, "3.21", rows[1][1])
	assert.Equal(t, "3", rows[3][6])
}
