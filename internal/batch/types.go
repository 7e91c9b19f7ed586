// Package batch drives a full assembly run: one parameter exchange per
// electrolyte bottle, one result exchange per assembled cell, with
// durable progress checkpoints so an interrupted run can resume.
package batch

import (
	"context"
	"time"
)

// Recipe holds the operator-specified assembly parameters sent to the
// controller at the start of every bottle.
type Recipe struct {
	AssemblyType        uint16  `json:"assembly_type"`
	ElectrolyteVolume   float32 `json:"electrolyte_volume"`
	AssemblyPressure    float32 `json:"assembly_pressure"`
	PressMode           uint16  `json:"press_mode"`
	SkipCleaning        bool    `json:"skip_cleaning"`
	AluminumFoil        bool    `json:"aluminum_foil"`
	DualDropMode        bool    `json:"dual_drop_mode"`
	DualDropFirstVolume float32 `json:"dual_drop_first_volume"`
	DualDropSuction     bool    `json:"dual_drop_suction_timing"`
	DualDropStart       bool    `json:"dual_drop_start_timing"`
	NegativePlateNum    uint16  `json:"negative_plate_num"`
	NegativePlateMatrix uint16  `json:"negative_plate_matrix"`
	SeparatorPlateNum   uint16  `json:"separator_plate_num"`
	SeparatorMatrix     uint16  `json:"separator_plate_matrix"`
	TipBoxMatrix        uint16  `json:"tip_box_matrix"`
}

// Params describes one batch run.
type Params struct {
	Bottles        int    `json:"bottles"`
	UnitsPerBottle int    `json:"units_per_bottle"`
	Recipe         Recipe `json:"recipe"`
}

// Total is the number of cells the run will produce.
func (p Params) Total() int {
	return p.Bottles * p.UnitsPerBottle
}

// UnitResult is the measurement record for one assembled cell. Immutable
// once appended to the result log.
type UnitResult struct {
	Sequence           int       `json:"sequence"`
	Time               time.Time `json:"time"`
	OpenCircuitVoltage float64   `json:"open_circuit_voltage"`
	PoleWeight         float64   `json:"pole_weight"`
	AssemblyTime       float64   `json:"assembly_time"`
	AssemblyPressure   float64   `json:"assembly_pressure"`
	ElectrolyteVolume  float64   `json:"electrolyte_volume"`
	CoinNum            int       `json:"coin_num"`
	ElectrolyteCode    string    `json:"electrolyte_code"`
	CoinCellCode       string    `json:"coin_cell_code"`
}

// Summary is handed back to the caller when a run ends, successfully or
// not. On failure it carries the results collected so far.
type Summary struct {
	Params    Params       `json:"params"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Results   []UnitResult `json:"results"`
	Resumed   bool         `json:"resumed"`
}

// Controller is the station-side protocol the engine drives. Implemented
// over the PLC node registry in production and by fakes in tests.
type Controller interface {
	// SendParameters runs the parameter exchange for one bottle,
	// announcing how many cells remain to be produced from it.
	SendParameters(ctx context.Context, bottle int, remainingUnits int, recipe Recipe) error

	// CollectUnit runs the result exchange for one cell and returns its
	// measurement record.
	CollectUnit(ctx context.Context, sequence int) (UnitResult, error)

	// SignalComplete tells the controller the whole batch is done.
	SignalComplete(ctx context.Context) error
}

// Notifier receives run progress events. All methods are called from the
// engine goroutine.
type Notifier interface {
	BatchStarted(params Params, resumed bool)
	UnitCompleted(result UnitResult, completed, total int)
	BatchCompleted(summary Summary)
	BatchFailed(summary Summary, err error)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) BatchStarted(Params, bool)            {}
func (NopNotifier) UnitCompleted(UnitResult, int, int)   {}
func (NopNotifier) BatchCompleted(Summary)               {}
func (NopNotifier) BatchFailed(Summary, error)           {}
