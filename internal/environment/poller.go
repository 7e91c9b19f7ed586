// Package environment samples the glove box atmosphere in the
// background and keeps a last-known snapshot for the API.
package environment

import (
	"context"
	"sync"
	"time"

	"github.com/deepmodeling/coincell-station/internal/api/websocket"
	"github.com/deepmodeling/coincell-station/internal/station"
	"go.uber.org/zap"
)

type Poller struct {
	station  *station.Station
	hub      *websocket.Hub
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.RWMutex
	last     station.GloveBox
}

func NewPoller(st *station.Station, hub *websocket.Hub, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		station:  st,
		hub:      hub,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start startet das zyklische Polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Environment poller started",
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stoppt das Polling
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Environment poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.sample()
		}
	}
}

func (p *Poller) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval/2)
	defer cancel()

	snapshot := p.station.GloveBox(ctx)

	p.mu.Lock()
	p.last = snapshot
	p.mu.Unlock()

	if p.hub != nil {
		p.hub.Broadcast(websocket.NewEnvironmentMessage(snapshot))
	}
}

// Last returns the most recent glove box snapshot.
func (p *Poller) Last() station.GloveBox {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
