package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepmodeling/coincell-station/internal/batch"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run is one batch run's history row.
type Run struct {
	ID             uuid.UUID  `json:"id"`
	Bottles        int        `json:"bottles"`
	UnitsPerBottle int        `json:"units_per_bottle"`
	Recipe         []byte     `json:"recipe"` // JSONB
	Status         string     `json:"status"`
	Completed      int        `json:"completed"`
	Resumed        bool       `json:"resumed"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
}

// RunUnit is one assembled cell's history row.
type RunUnit struct {
	ID                 uuid.UUID `json:"id"`
	RunID              uuid.UUID `json:"run_id"`
	Sequence           int       `json:"sequence"`
	OpenCircuitVoltage float64   `json:"open_circuit_voltage"`
	PoleWeight         float64   `json:"pole_weight"`
	AssemblyTime       float64   `json:"assembly_time"`
	AssemblyPressure   float64   `json:"assembly_pressure"`
	ElectrolyteVolume  float64   `json:"electrolyte_volume"`
	CoinNum            int       `json:"coin_num"`
	ElectrolyteCode    string    `json:"electrolyte_code"`
	CoinCellCode       string    `json:"coin_cell_code"`
	AssembledAt        time.Time `json:"assembled_at"`
}

// RunStarted inserts a new run row. Satisfies the batch engine's
// recorder interface.
func (p *PostgresClient) RunStarted(ctx context.Context, runID uuid.UUID, params batch.Params, resumed bool) error {
	recipeJSON, err := json.Marshal(params.Recipe)
	if err != nil {
		return fmt.Errorf("failed to marshal recipe: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO runs (id, bottles, units_per_bottle, recipe, status, resumed)
		VALUES ($1, $2, $3, $4, 'running', $5)
	`, runID, params.Bottles, params.UnitsPerBottle, recipeJSON, resumed)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// UnitRecorded inserts one assembled cell's row.
func (p *PostgresClient) UnitRecorded(ctx context.Context, runID uuid.UUID, r batch.UnitResult) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO run_units (run_id, sequence, open_circuit_voltage, pole_weight,
		                       assembly_time, assembly_pressure, electrolyte_volume,
		                       coin_num, electrolyte_code, coin_cell_code, assembled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, runID, r.Sequence, r.OpenCircuitVoltage, r.PoleWeight,
		r.AssemblyTime, r.AssemblyPressure, r.ElectrolyteVolume,
		r.CoinNum, r.ElectrolyteCode, r.CoinCellCode, r.Time)
	if err != nil {
		return fmt.Errorf("failed to insert run unit: %w", err)
	}
	return nil
}

// RunFinished closes a run row with its final status.
func (p *PostgresClient) RunFinished(ctx context.Context, runID uuid.UUID, status string, completed int) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE runs SET status = $1, completed = $2, finished_at = NOW() WHERE id = $3
	`, status, completed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// GetRun loads one run.
func (p *PostgresClient) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	err := p.pool.QueryRow(ctx, `
		SELECT id, bottles, units_per_bottle, recipe, status, completed, resumed, started_at, finished_at
		FROM runs WHERE id = $1
	`, runID).Scan(
		&run.ID, &run.Bottles, &run.UnitsPerBottle, &run.Recipe,
		&run.Status, &run.Completed, &run.Resumed, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns run history, newest first.
func (p *PostgresClient) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, bottles, units_per_bottle, recipe, status, completed, resumed, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		err := rows.Scan(
			&run.ID, &run.Bottles, &run.UnitsPerBottle, &run.Recipe,
			&run.Status, &run.Completed, &run.Resumed, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// ListRunUnits returns all cells of one run in assembly order.
func (p *PostgresClient) ListRunUnits(ctx context.Context, runID uuid.UUID) ([]*RunUnit, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, run_id, sequence, open_circuit_voltage, pole_weight,
		       assembly_time, assembly_pressure, electrolyte_volume,
		       coin_num, electrolyte_code, coin_cell_code, assembled_at
		FROM run_units WHERE run_id = $1 ORDER BY sequence
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run units: %w", err)
	}
	defer rows.Close()

	var units []*RunUnit
	for rows.Next() {
		var u RunUnit
		err := rows.Scan(
			&u.ID, &u.RunID, &u.Sequence, &u.OpenCircuitVoltage, &u.PoleWeight,
			&u.AssemblyTime, &u.AssemblyPressure, &u.ElectrolyteVolume,
			&u.CoinNum, &u.ElectrolyteCode, &u.CoinCellCode, &u.AssembledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run unit: %w", err)
		}
		units = append(units, &u)
	}
	return units, nil
}
