package interfaces

import (
    "context"

    "github.com/deepmodeling/coincell-station/internal/config"
    "github.com/deepmodeling/coincell-station/internal/environment"
    "github.com/deepmodeling/coincell-station/internal/plc"
    "github.com/deepmodeling/coincell-station/internal/station"
    "github.com/deepmodeling/coincell-station/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
    State        string `json:"state"`
    PLCConnected bool   `json:"plc_connected"`
    NodeCount    int    `json:"node_count"`
    WSClients    int    `json:"ws_clients"`
}

type LifecycleManager interface {
    Config() *config.Config
    Storage() *storage.PostgresClient
    StationController() *station.Controller
    Registry() *plc.Registry
    Environment() *environment.Poller
    GetCurrentStatus() SystemStatus
    Shutdown(ctx context.Context) error
}
