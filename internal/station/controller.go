package station

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deepmodeling/coincell-station/internal/api/websocket"
	"github.com/deepmodeling/coincell-station/internal/batch"
	"go.uber.org/zap"
)

// Controller owns the station lifecycle: it sequences initialization,
// runs batches through the engine and tracks the externally visible
// state machine.
type Controller struct {
	logger  *zap.Logger
	station *Station
	engine  *batch.Engine
	wsHub   *websocket.Hub

	mu              sync.RWMutex
	currentState    State
	errorMessage    string
	cellsCompleted  int
	cellsTotal      int
	batchResumed    bool
	lastStateChange time.Time
	cancelRun       context.CancelFunc
}

func NewController(logger *zap.Logger, st *Station, engine *batch.Engine, wsHub *websocket.Hub) *Controller {
	c := &Controller{
		logger:          logger,
		station:         st,
		engine:          engine,
		wsHub:           wsHub,
		currentState:    StateIdle,
		lastStateChange: time.Now(),
	}
	engine.SetNotifier(c)
	return c
}

// ExecuteCommand handles station commands
func (c *Controller) ExecuteCommand(ctx context.Context, cmd Command) error {
	c.mu.RLock()
	currentState := c.currentState
	c.mu.RUnlock()

	c.logger.Info("Station command received",
		zap.String("command", string(cmd)),
		zap.String("current_state", string(currentState)))

	switch cmd {
	case CommandInit:
		return c.executeInit()
	case CommandStop:
		return c.executeStop(ctx)
	case CommandReset:
		return c.executeReset(ctx)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *Controller) executeInit() error {
	c.mu.Lock()
	if c.currentState != StateIdle && c.currentState != StateError {
		c.mu.Unlock()
		return fmt.Errorf("cannot initialize: station must be idle (current: %s)", c.currentState)
	}
	c.currentState = StateInitializing
	c.errorMessage = ""
	c.lastStateChange = time.Now()
	c.mu.Unlock()
	c.broadcastState(StateInitializing, StateIdle, "")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := c.station.Initialize(ctx); err != nil {
			c.setState(StateError, err.Error())
			return
		}
		c.setState(StateReady, "")
	}()
	return nil
}

// StartBatch launches a batch run in the background. The controller must
// be ready; progress is published through the hub and tracked in the
// status.
func (c *Controller) StartBatch(params batch.Params) error {
	if params.Bottles < 0 || params.UnitsPerBottle < 0 {
		return fmt.Errorf("invalid batch parameters: %d bottles, %d units per bottle",
			params.Bottles, params.UnitsPerBottle)
	}

	c.mu.Lock()
	if c.currentState != StateReady {
		c.mu.Unlock()
		return fmt.Errorf("cannot start batch: station must be ready (current: %s)", c.currentState)
	}

	// The checkpoint decides whether the bottle transfer announcement is
	// still owed to the controller; a resumed run already made it.
	pending, err := c.engine.PendingCheckpoint()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if pending != nil {
		if err := pending.Validate(params); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	c.currentState = StateRunning
	c.errorMessage = ""
	c.cellsCompleted = 0
	c.cellsTotal = params.Total()
	c.lastStateChange = time.Now()
	c.mu.Unlock()
	c.broadcastState(StateRunning, StateReady, "")

	go func() {
		defer cancel()

		if pending == nil && params.Total() > 0 {
			if err := c.station.SendBottleCount(runCtx, params.Bottles); err != nil {
				c.setState(StateError, err.Error())
				return
			}
		}

		if _, err := c.engine.Run(runCtx, params); err != nil {
			if runCtx.Err() != nil {
				// Operator stop, not a fault.
				c.setState(StateReady, "")
				return
			}
			c.setState(StateError, err.Error())
			return
		}
		c.setState(StateReady, "")
	}()
	return nil
}

func (c *Controller) executeStop(ctx context.Context) error {
	c.mu.Lock()
	prev := c.currentState
	cancel := c.cancelRun
	c.currentState = StateStopping
	c.lastStateChange = time.Now()
	c.mu.Unlock()
	c.broadcastState(StateStopping, prev, "")

	if cancel != nil {
		cancel()
	}
	if err := c.station.Stop(ctx); err != nil {
		c.setState(StateError, err.Error())
		return err
	}
	c.setState(StateIdle, "")
	return nil
}

func (c *Controller) executeReset(ctx context.Context) error {
	c.mu.RLock()
	if c.currentState != StateError {
		state := c.currentState
		c.mu.RUnlock()
		return fmt.Errorf("cannot reset: station is not in error state (current: %s)", state)
	}
	c.mu.RUnlock()

	if err := c.station.Reset(ctx); err != nil {
		return err
	}
	c.setState(StateIdle, "")
	return nil
}

func (c *Controller) setState(state State, errMsg string) {
	c.mu.Lock()
	prev := c.currentState
	c.currentState = state
	c.errorMessage = errMsg
	c.lastStateChange = time.Now()
	c.mu.Unlock()

	c.logger.Info("Station state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(state)),
		zap.String("error", errMsg))
	c.broadcastState(state, prev, errMsg)
}

func (c *Controller) broadcastState(state, prev State, errMsg string) {
	if c.wsHub == nil {
		return
	}
	c.wsHub.Broadcast(websocket.NewStationStateMessage(string(state), string(prev), errMsg))
}

// GetStatus returns the current station status snapshot. Satisfies the
// hub's status provider interface.
func (c *Controller) GetStatus() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		State:           c.currentState,
		ErrorMessage:    c.errorMessage,
		CellsCompleted:  c.cellsCompleted,
		CellsTotal:      c.cellsTotal,
		BatchResumed:    c.batchResumed,
		LastStateChange: c.lastStateChange,
	}
}

// Status is like GetStatus but typed, for the REST layer.
func (c *Controller) Status() Status {
	return c.GetStatus().(Status)
}

// Station exposes the underlying protocol driver for read-only queries.
func (c *Controller) Station() *Station {
	return c.station
}

// Engine exposes the batch engine for checkpoint inspection.
func (c *Controller) Engine() *batch.Engine {
	return c.engine
}

// Batch engine progress events.

func (c *Controller) BatchStarted(params batch.Params, resumed bool) {
	c.mu.Lock()
	c.batchResumed = resumed
	c.cellsTotal = params.Total()
	c.mu.Unlock()
	if c.wsHub != nil {
		c.wsHub.Broadcast(websocket.NewBatchStartedMessage(params, resumed))
	}
}

func (c *Controller) UnitCompleted(result batch.UnitResult, completed, total int) {
	c.mu.Lock()
	c.cellsCompleted = completed
	c.mu.Unlock()
	if c.wsHub != nil {
		c.wsHub.Broadcast(websocket.NewUnitCompletedMessage(result, completed, total))
	}
}

func (c *Controller) BatchCompleted(summary batch.Summary) {
	if c.wsHub != nil {
		c.wsHub.Broadcast(websocket.NewBatchCompletedMessage(summary))
	}
}

func (c *Controller) BatchFailed(summary batch.Summary, err error) {
	if c.wsHub != nil {
		c.wsHub.Broadcast(websocket.NewBatchFailedMessage(summary, err.Error()))
	}
}
