package websocket

import (
	"time"

	"github.com/deepmodeling/coincell-station/internal/batch"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Station state messages
	MessageTypeStationState MessageType = "station_state"

	// Batch run messages
	MessageTypeBatchStarted   MessageType = "batch_started"
	MessageTypeUnitCompleted  MessageType = "unit_completed"
	MessageTypeBatchCompleted MessageType = "batch_completed"
	MessageTypeBatchFailed    MessageType = "batch_failed"

	// Glove box environment samples
	MessageTypeEnvironment MessageType = "environment"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StationStateData represents station state change data
type StationStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
	Error    string `json:"error,omitempty"`
}

// BatchProgressData represents one run progress event
type BatchProgressData struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Sequence  int    `json:"sequence,omitempty"`
	CoinCell  string `json:"coin_cell_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Helper functions for creating specific message types

func NewStationStateMessage(newState, previousState, errMsg string) Message {
	return NewMessage(MessageTypeStationState, StationStateData{
		State:    newState,
		Previous: previousState,
		Error:    errMsg,
	})
}

func NewBatchStartedMessage(params batch.Params, resumed bool) Message {
	return NewMessage(MessageTypeBatchStarted, map[string]interface{}{
		"params":  params,
		"resumed": resumed,
	})
}

func NewUnitCompletedMessage(result batch.UnitResult, completed, total int) Message {
	return NewMessage(MessageTypeUnitCompleted, BatchProgressData{
		Completed: completed,
		Total:     total,
		Sequence:  result.Sequence,
		CoinCell:  result.CoinCellCode,
	})
}

func NewBatchCompletedMessage(summary batch.Summary) Message {
	return NewMessage(MessageTypeBatchCompleted, BatchProgressData{
		Completed: summary.Completed,
		Total:     summary.Total,
	})
}

func NewBatchFailedMessage(summary batch.Summary, errMsg string) Message {
	return NewMessage(MessageTypeBatchFailed, BatchProgressData{
		Completed: summary.Completed,
		Total:     summary.Total,
		Message:   errMsg,
	})
}

func NewEnvironmentMessage(sample interface{}) Message {
	return NewMessage(MessageTypeEnvironment, sample)
}
