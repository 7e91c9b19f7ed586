// Package station implements the workstation-side half of the PLC
// message protocol: mode switching, the per-bottle parameter exchange,
// the per-cell result exchange and the batch completion signal.
package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deepmodeling/coincell-station/internal/batch"
	"github.com/deepmodeling/coincell-station/internal/codec"
	"github.com/deepmodeling/coincell-station/internal/handshake"
	"github.com/deepmodeling/coincell-station/internal/plc"
	"go.uber.org/zap"
)

var (
	// ErrPrecondition means the HMI is configured to bypass remote
	// interaction and the operator has to flip it back first.
	ErrPrecondition = errors.New("station: HMI precondition not met")

	ErrTransport = errors.New("station: transport fault")
)

// Config bounds every poll loop the station runs.
type Config struct {
	PollInterval     time.Duration
	HandshakeTimeout time.Duration
}

// DefaultConfig polls once a second and gives the controller a minute to
// answer, matching the cadence the line runs at.
func DefaultConfig() Config {
	return Config{
		PollInterval:     time.Second,
		HandshakeTimeout: time.Minute,
	}
}

// requiredNodes is checked at construction so a truncated node table
// fails at startup rather than mid-batch.
var requiredNodes = []string{
	NodeSysStartCmd, NodeSysStartStatus,
	NodeSysStopCmd, NodeSysStopStatus,
	NodeSysHandCmd, NodeSysHandStatus,
	NodeSysAutoCmd, NodeSysAutoStatus,
	NodeSysInitCmd, NodeSysInitStatus,
	NodeRequestRecMsgStatus, NodeRequestSendMsgStatus,
	NodeSendMsgSuccCmd, NodeRecMsgSuccCmd,
	NodeSendBottleNum, NodeReceBottleNum,
	NodeSendFinishedCmd, NodeReceFinishedCmd,
	NodeMsgElectrolyteNum, NodeMsgElectrolyteUseNum,
	NodeMsgAssemblyType, NodeMsgElectrolyteVolume, NodeMsgAssemblyPressure,
	NodeMsgNePlateNum, NodeMsgNePlateMatrix,
	NodeMsgSeparatorNum, NodeMsgSeparatorMatrix, NodeMsgTipBoxMatrix,
	NodeMsgPressMode, NodeMsgCleanIgnore, NodeMsgDualDropFirstVol,
	NodeCoilAluminumFoil, NodeCoilDualDropMode,
	NodeCoilDualDropSuction, NodeCoilDualDropStart,
	NodeSysResetCmd, NodeSysResetStatus,
	NodeDataOpenCircuitVoltage, NodeDataPoleWeight, NodeDataAssemblyTime,
	NodeDataAssemblyPressure, NodeDataElectrolyteVolume, NodeDataCoinNum,
	NodeDataCoinCellCode, NodeDataElectrolyteCode,
	NodeDataGloveBoxPressure, NodeDataGloveBoxO2, NodeDataGloveBoxWater,
	NodeDataAxisXPos, NodeDataAxisYPos, NodeDataAxisZPos,
	NodeUnilabInteract, NodeGloveBoxIgnore, NodeWarning1,
}

// Station drives the workstation protocol over a validated node
// registry. It satisfies the batch engine's controller interface.
type Station struct {
	registry *plc.Registry
	cfg      Config
	logger   *zap.Logger
}

func New(registry *plc.Registry, cfg Config, logger *zap.Logger) (*Station, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = time.Minute
	}
	for _, name := range requiredNodes {
		if _, err := registry.Node(name); err != nil {
			return nil, fmt.Errorf("station: node table incomplete: %w", err)
		}
	}
	return &Station{registry: registry, cfg: cfg, logger: logger}, nil
}

func (s *Station) waitCfg() handshake.Config {
	return handshake.Config{Interval: s.cfg.PollInterval, Timeout: s.cfg.HandshakeTimeout}
}

// waitCoil polls a coil until it reads the wanted value.
func (s *Station) waitCoil(ctx context.Context, name string, want bool) error {
	node := s.registry.MustNode(name)
	result := handshake.Wait(ctx, func(ctx context.Context) (bool, bool) {
		v, fault := node.ReadBool(ctx)
		if fault {
			return false, true
		}
		return v == want, false
	}, s.waitCfg())

	switch result {
	case handshake.Ready:
		return nil
	case handshake.TimedOut:
		return fmt.Errorf("wait %s=%t: %w", name, want, handshake.ErrTimeout)
	default:
		return ctx.Err()
	}
}

func (s *Station) write(ctx context.Context, name string, value any, opts ...plc.Option) error {
	fault, err := s.registry.MustNode(name).Write(ctx, value, opts...)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if fault {
		return fmt.Errorf("write %s: %w", name, ErrTransport)
	}
	return nil
}

// pulse runs the assert, wait, deassert sequence of a command coil
// against an observed coil. wantAfterAssert is the observed value that
// confirms the controller saw the command.
func (s *Station) pulse(ctx context.Context, cmd, observed string, wantAfterAssert bool) error {
	if err := s.write(ctx, cmd, true); err != nil {
		return err
	}
	if err := s.waitCoil(ctx, observed, wantAfterAssert); err != nil {
		return err
	}
	return s.write(ctx, cmd, false)
}

// modeSwitch is the standard command/status handshake used for mode and
// lifecycle transitions.
func (s *Station) modeSwitch(ctx context.Context, name, cmd, status string) error {
	h := &handshake.Handshake{
		Name:   name,
		Cmd:    s.registry.MustNode(cmd),
		Status: s.registry.MustNode(status),
		Cfg:    s.waitCfg(),
		Logger: s.logger,
	}
	return h.Run(ctx)
}

// CheckPreconditions verifies the HMI is set up for remote interaction:
// the interact bypass register and the left glove box bypass coil must
// both read false.
func (s *Station) CheckPreconditions(ctx context.Context) error {
	interact, fault := s.registry.MustNode(NodeUnilabInteract).ReadBool(ctx)
	if fault {
		return fmt.Errorf("read %s: %w", NodeUnilabInteract, ErrTransport)
	}
	if interact {
		return fmt.Errorf("%w: %s must be false (remote interaction bypassed on HMI)",
			ErrPrecondition, NodeUnilabInteract)
	}

	ignore, fault := s.registry.MustNode(NodeGloveBoxIgnore).ReadBool(ctx)
	if fault {
		return fmt.Errorf("read %s: %w", NodeGloveBoxIgnore, ErrTransport)
	}
	if ignore {
		return fmt.Errorf("%w: %s must be false (left glove box bypassed on HMI)",
			ErrPrecondition, NodeGloveBoxIgnore)
	}
	return nil
}

// Initialize brings the workstation to a running state: switch to
// manual, home the mechanics, switch to automatic, start. Preconditions
// are checked first.
func (s *Station) Initialize(ctx context.Context) error {
	if err := s.CheckPreconditions(ctx); err != nil {
		return err
	}

	// Homing requires manual mode; hold it for the whole init command.
	if err := s.write(ctx, NodeSysHandCmd, true); err != nil {
		return err
	}
	if err := s.waitCoil(ctx, NodeSysHandStatus, true); err != nil {
		return err
	}
	if err := s.write(ctx, NodeSysInitCmd, true); err != nil {
		return err
	}
	if err := s.waitCoil(ctx, NodeSysInitStatus, true); err != nil {
		return err
	}
	if err := s.write(ctx, NodeSysHandCmd, false); err != nil {
		return err
	}
	if err := s.write(ctx, NodeSysInitCmd, false); err != nil {
		return err
	}
	s.logger.Info("Workstation homed")

	if err := s.modeSwitch(ctx, "auto", NodeSysAutoCmd, NodeSysAutoStatus); err != nil {
		return err
	}
	if err := s.modeSwitch(ctx, "start", NodeSysStartCmd, NodeSysStartStatus); err != nil {
		return err
	}
	s.logger.Info("Workstation running in automatic mode")
	return nil
}

// Stop halts the line via the stop command pair.
func (s *Station) Stop(ctx context.Context) error {
	return s.modeSwitch(ctx, "stop", NodeSysStopCmd, NodeSysStopStatus)
}

// Reset acknowledges a fault via the reset command pair.
func (s *Station) Reset(ctx context.Context) error {
	return s.modeSwitch(ctx, "reset", NodeSysResetCmd, NodeSysResetStatus)
}

// SendBottleCount announces how many electrolyte bottles the batch will
// use, which triggers the transfer carriage.
func (s *Station) SendBottleCount(ctx context.Context, bottles int) error {
	if err := s.waitCoil(ctx, NodeReceBottleNum, true); err != nil {
		return err
	}
	if err := s.write(ctx, NodeMsgElectrolyteNum, uint16(bottles)); err != nil {
		return err
	}
	if err := s.pulse(ctx, NodeSendBottleNum, NodeReceBottleNum, false); err != nil {
		return err
	}
	s.logger.Info("Bottle count sent", zap.Int("bottles", bottles))
	return nil
}

// SendParameters runs the parameter exchange for one bottle. The
// controller asserts its receive-ready status, the parameters are
// written, and the send-complete pulse is held until the controller
// drops its ready status to acknowledge consumption.
func (s *Station) SendParameters(ctx context.Context, bottle, remainingUnits int, recipe batch.Recipe) error {
	if err := s.waitCoil(ctx, NodeRequestRecMsgStatus, true); err != nil {
		return err
	}

	little := []plc.Option{plc.WithType(codec.TypeFloat32), plc.WithOrder(codec.WordLittle)}
	writes := []struct {
		name  string
		value any
		opts  []plc.Option
	}{
		{NodeMsgElectrolyteUseNum, uint16(remainingUnits), nil},
		{NodeMsgElectrolyteVolume, recipe.ElectrolyteVolume, little},
		{NodeMsgAssemblyType, recipe.AssemblyType, nil},
		{NodeMsgAssemblyPressure, recipe.AssemblyPressure, little},
		{NodeMsgNePlateNum, recipe.NegativePlateNum, nil},
		{NodeMsgNePlateMatrix, recipe.NegativePlateMatrix, nil},
		{NodeMsgSeparatorNum, recipe.SeparatorPlateNum, nil},
		{NodeMsgSeparatorMatrix, recipe.SeparatorMatrix, nil},
		{NodeMsgTipBoxMatrix, recipe.TipBoxMatrix, nil},
		{NodeMsgPressMode, recipe.PressMode, nil},
		{NodeMsgCleanIgnore, boolWord(recipe.SkipCleaning), nil},
		{NodeCoilAluminumFoil, recipe.AluminumFoil, nil},
		{NodeCoilDualDropMode, recipe.DualDropMode, nil},
	}
	for _, w := range writes {
		if err := s.write(ctx, w.name, w.value, w.opts...); err != nil {
			return err
		}
	}
	if recipe.DualDropMode {
		if err := s.write(ctx, NodeMsgDualDropFirstVol, recipe.DualDropFirstVolume, little...); err != nil {
			return err
		}
		if err := s.write(ctx, NodeCoilDualDropSuction, recipe.DualDropSuction); err != nil {
			return err
		}
		if err := s.write(ctx, NodeCoilDualDropStart, recipe.DualDropStart); err != nil {
			return err
		}
	}

	if err := s.pulse(ctx, NodeSendMsgSuccCmd, NodeRequestRecMsgStatus, false); err != nil {
		return err
	}
	s.logger.Info("Parameters sent",
		zap.Int("bottle", bottle),
		zap.Int("remaining_units", remainingUnits))
	return nil
}

// CollectUnit runs the result exchange for one assembled cell: wait for
// the controller's send-ready status, read all measurement registers,
// then pulse receive-complete until the ready status drops.
func (s *Station) CollectUnit(ctx context.Context, sequence int) (batch.UnitResult, error) {
	if err := s.waitCoil(ctx, NodeRequestSendMsgStatus, true); err != nil {
		return batch.UnitResult{}, err
	}

	result := batch.UnitResult{
		Sequence:           sequence,
		Time:               time.Now(),
		OpenCircuitVoltage: s.readFloat32Little(ctx, NodeDataOpenCircuitVoltage),
		PoleWeight:         s.readFloat32Little(ctx, NodeDataPoleWeight),
		AssemblyTime:       s.readFloat32Little(ctx, NodeDataAssemblyTime),
		AssemblyPressure:   float64(s.readWord(ctx, NodeDataAssemblyPressure)),
		ElectrolyteVolume:  float64(s.readWord(ctx, NodeDataElectrolyteVolume)),
		CoinNum:            int(s.readWord(ctx, NodeDataCoinNum)),
		ElectrolyteCode:    s.readBarcode(ctx, NodeDataElectrolyteCode),
		CoinCellCode:       s.readBarcode(ctx, NodeDataCoinCellCode),
	}

	if err := s.pulse(ctx, NodeRecMsgSuccCmd, NodeRequestSendMsgStatus, false); err != nil {
		return result, err
	}
	return result, nil
}

// SignalComplete tells the controller the batch is finished once it
// asserts its finished-ready status.
func (s *Station) SignalComplete(ctx context.Context) error {
	if err := s.waitCoil(ctx, NodeReceFinishedCmd, true); err != nil {
		return err
	}
	return s.pulse(ctx, NodeSendFinishedCmd, NodeReceFinishedCmd, false)
}

// Mode reports the operating mode as shown on the HMI.
func (s *Station) Mode(ctx context.Context) string {
	if hand, fault := s.registry.MustNode(NodeSysHandStatus).ReadBool(ctx); !fault && hand {
		return "manual"
	}
	if auto, fault := s.registry.MustNode(NodeSysAutoStatus).ReadBool(ctx); !fault && auto {
		return "auto"
	}
	return "unknown"
}

// Alarm reports whether the warning lamp is lit.
func (s *Station) Alarm(ctx context.Context) bool {
	v, _ := s.registry.MustNode(NodeWarning1).ReadBool(ctx)
	return v
}

// GloveBox holds one sample of the glove box atmosphere sensors.
type GloveBox struct {
	Pressure     float64   `json:"pressure_mbar"`
	O2Content    float64   `json:"o2_content_ppm"`
	WaterContent float64   `json:"water_content_ppm"`
	SampledAt    time.Time `json:"sampled_at"`
}

// AxisPositions holds one sample of the gantry axis encoders.
type AxisPositions struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GloveBox samples the glove box atmosphere registers.
func (s *Station) GloveBox(ctx context.Context) GloveBox {
	return GloveBox{
		Pressure:     s.readFloat32Little(ctx, NodeDataGloveBoxPressure),
		O2Content:    s.readFloat32Little(ctx, NodeDataGloveBoxO2),
		WaterContent: s.readFloat32Little(ctx, NodeDataGloveBoxWater),
		SampledAt:    time.Now(),
	}
}

// Positions samples the gantry axis encoders.
func (s *Station) Positions(ctx context.Context) AxisPositions {
	return AxisPositions{
		X: s.readFloat32Little(ctx, NodeDataAxisXPos),
		Y: s.readFloat32Little(ctx, NodeDataAxisYPos),
		Z: s.readFloat32Little(ctx, NodeDataAxisZPos),
	}
}

// Measurement reads tolerate faults and fall back to zero values; a
// flaky sensor must not abort a unit that was assembled fine.

func (s *Station) readFloat32Little(ctx context.Context, name string) float64 {
	v, fault, err := s.registry.MustNode(name).Read(ctx, 2,
		plc.WithType(codec.TypeFloat32), plc.WithOrder(codec.WordLittle))
	if err != nil || fault {
		return 0
	}
	f, ok := v.(float32)
	if !ok {
		return 0
	}
	return float64(f)
}

func (s *Station) readWord(ctx context.Context, name string) uint16 {
	v, fault, err := s.registry.MustNode(name).Read(ctx, 1, plc.WithType(codec.TypeUint16))
	if err != nil || fault {
		return 0
	}
	w, ok := v.(uint16)
	if !ok {
		return 0
	}
	return w
}

func (s *Station) readBarcode(ctx context.Context, name string) string {
	v, fault, err := s.registry.MustNode(name).Read(ctx, barcodeRegisterCount,
		plc.WithType(codec.TypeString))
	if err != nil || fault {
		return "N/A"
	}
	raw, ok := v.(string)
	if !ok {
		return "N/A"
	}
	return decodeScannedCode(raw)
}

func boolWord(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
