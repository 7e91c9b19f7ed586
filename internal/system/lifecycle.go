package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deepmodeling/coincell-station/internal/api/rest"
	"github.com/deepmodeling/coincell-station/internal/api/websocket"
	"github.com/deepmodeling/coincell-station/internal/auth"
	"github.com/deepmodeling/coincell-station/internal/batch"
	"github.com/deepmodeling/coincell-station/internal/config"
	"github.com/deepmodeling/coincell-station/internal/environment"
	"github.com/deepmodeling/coincell-station/internal/interfaces"
	"github.com/deepmodeling/coincell-station/internal/modbus"
	"github.com/deepmodeling/coincell-station/internal/plc"
	"github.com/deepmodeling/coincell-station/internal/station"
	"github.com/deepmodeling/coincell-station/internal/storage"
	"go.uber.org/zap"
)

// LifecycleManager wires the whole system together: PLC link, node
// registry, station protocol, batch engine, WebSocket hub and the REST
// API, and owns their start/stop order.
type LifecycleManager struct {
	config      *config.Config
	storage     *storage.PostgresClient
	logger      *zap.Logger
	plcClient   *modbus.Client
	registry    *plc.Registry
	stationCtrl *station.Controller
	engine      *batch.Engine
	authService *auth.AuthService
	wsHub       *websocket.Hub
	envPoller   *environment.Poller

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(
	store *storage.PostgresClient,
	cfg *config.Config,
	logger *zap.Logger,
) *LifecycleManager {
	plcClient := modbus.NewClient(cfg.PLC.Address, cfg.PLC.Timeout)

	registry, err := plc.LoadRegistry(cfg.PLC.NodeTablePath, plcClient)
	if err != nil {
		logger.Fatal("Failed to load node table", zap.Error(err))
	}

	st, err := station.New(registry, station.Config{
		PollInterval:     cfg.PLC.PollInterval,
		HandshakeTimeout: cfg.PLC.HandshakeTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create station", zap.Error(err))
	}

	checkpoints := batch.NewCheckpointStore(filepath.Join(cfg.Batch.DataDir, "checkpoint.csv"))
	results := batch.NewResultLog(cfg.Batch.DataDir)
	engine := batch.NewEngine(st, checkpoints, results, logger)
	if store != nil {
		engine.SetRecorder(store)
	}

	authService := auth.NewAuthService(store, cfg.Auth)
	wsHub := websocket.NewHub(logger, authService)
	stationCtrl := station.NewController(logger, st, engine, wsHub)
	wsHub.SetStationStatusProvider(stationCtrl)

	envPoller := environment.NewPoller(st, wsHub, cfg.Environment.PollInterval, logger)

	return &LifecycleManager{
		config:          cfg,
		storage:         store,
		logger:          logger,
		plcClient:       plcClient,
		registry:        registry,
		stationCtrl:     stationCtrl,
		engine:          engine,
		authService:     authService,
		wsHub:           wsHub,
		envPoller:       envPoller,
		currentState:    StateInitializing,
		shutdownChan:    make(chan struct{}),
		statusListeners: make([]chan SystemStatus, 0),
	}
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting coin cell assembly station")

	lm.setState(StateInitializing)
	lm.broadcastStatus()

	if err := os.MkdirAll(lm.config.Batch.DataDir, 0o755); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// The link may be down at boot; the reconnect loop keeps trying and
	// every protocol operation reports faults until it is back.
	if err := lm.plcClient.Connect(); err != nil {
		lm.logger.Warn("PLC not reachable, will keep retrying",
			zap.String("address", lm.config.PLC.Address),
			zap.Error(err))
	}
	go lm.reconnectLoop()

	go lm.wsHub.Run()

	if err := lm.envPoller.Start(); err != nil {
		lm.logger.Warn("Failed to start environment poller", zap.Error(err))
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("plc_address", lm.config.PLC.Address),
		zap.Int("nodes", lm.registry.Len()))

	return nil
}

// reconnectLoop re-establishes the PLC link whenever it drops.
func (lm *LifecycleManager) reconnectLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-lm.shutdownChan:
			return
		case <-ticker.C:
			if lm.plcClient.Connected() {
				continue
			}
			if err := lm.plcClient.Connect(); err != nil {
				lm.logger.Debug("PLC reconnect failed", zap.Error(err))
				continue
			}
			lm.logger.Info("PLC link re-established",
				zap.String("address", lm.config.PLC.Address))
		}
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Environment poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.envPoller.Stop()
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. PLC link
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.plcClient.Close(); err != nil {
			errChan <- fmt.Errorf("plc close failed: %w", err)
		}
	}()

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if state != lm.currentState {
		if err := ValidateTransition(lm.currentState, state); err != nil {
			lm.logger.Warn("Forcing state transition", zap.Error(err))
		}
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastError = err.Error()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return interfaces.SystemStatus{
		State:        lm.currentState.String(),
		PLCConnected: lm.plcClient.Connected(),
		NodeCount:    lm.registry.Len(),
		WSClients:    lm.wsHub.GetClientCount(),
	}
}

// getStatusInternal returns typed status (for internal use)
func (lm *LifecycleManager) getStatusInternal() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return SystemStatus{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
		Error:     lm.lastError,
	}
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.getStatusInternal()

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// StationController returns the station controller
func (lm *LifecycleManager) StationController() *station.Controller {
	return lm.stationCtrl
}

// Registry returns the PLC node registry
func (lm *LifecycleManager) Registry() *plc.Registry {
	return lm.registry
}

// Environment returns the glove box environment poller
func (lm *LifecycleManager) Environment() *environment.Poller {
	return lm.envPoller
}

// Storage returns the storage client
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}
