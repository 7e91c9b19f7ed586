package station

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/deepmodeling/coincell-station/internal/batch"
	"github.com/deepmodeling/coincell-station/internal/handshake"
	"github.com/deepmodeling/coincell-station/internal/plc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePLC simulates the controller side of the link: a coil/register
// image plus a hook that scripts the controller's reactions to writes.
type fakePLC struct {
	mu          sync.Mutex
	coils       map[uint16]bool
	regs        map[uint16]uint16
	onCoilWrite func(p *fakePLC, addr uint16, value bool)
	failAll     bool
}

func newFakePLC() *fakePLC {
	return &fakePLC{
		coils: make(map[uint16]bool),
		regs:  make(map[uint16]uint16),
	}
}

func (p *fakePLC) setCoil(addr uint16, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coils[addr] = v
}

func (p *fakePLC) reg(addr uint16) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[addr]
}

func (p *fakePLC) coil(addr uint16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coils[addr]
}

func (p *fakePLC) setString(addr uint16, s string, regCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bytes := make([]byte, regCount*2)
	copy(bytes, s)
	for i := 0; i < regCount; i++ {
		p.regs[addr+uint16(i)] = uint16(bytes[2*i])<<8 | uint16(bytes[2*i+1])
	}
}

func (p *fakePLC) setFloat32Little(addr uint16, v float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bits := math.Float32bits(v)
	p.regs[addr] = uint16(bits)         // low word first
	p.regs[addr+1] = uint16(bits >> 16) // high word second
}

func (p *fakePLC) ReadCoils(_ context.Context, _ uint8, start, quantity uint16) ([]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return nil, errors.New("link down")
	}
	out := make([]bool, quantity)
	for i := range out {
		out[i] = p.coils[start+uint16(i)]
	}
	return out, nil
}

func (p *fakePLC) ReadDiscreteInputs(ctx context.Context, unit uint8, start, quantity uint16) ([]bool, error) {
	return p.ReadCoils(ctx, unit, start, quantity)
}

func (p *fakePLC) ReadHoldingRegisters(_ context.Context, _ uint8, start, quantity uint16) ([]uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return nil, errors.New("link down")
	}
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = p.regs[start+uint16(i)]
	}
	return out, nil
}

func (p *fakePLC) ReadInputRegisters(ctx context.Context, unit uint8, start, quantity uint16) ([]uint16, error) {
	return p.ReadHoldingRegisters(ctx, unit, start, quantity)
}

func (p *fakePLC) WriteCoil(_ context.Context, _ uint8, addr uint16, value bool) error {
	p.mu.Lock()
	if p.failAll {
		p.mu.Unlock()
		return errors.New("link down")
	}
	p.coils[addr] = value
	hook := p.onCoilWrite
	p.mu.Unlock()
	if hook != nil {
		hook(p, addr, value)
	}
	return nil
}

func (p *fakePLC) WriteCoils(ctx context.Context, unit uint8, start uint16, values []bool) error {
	for i, v := range values {
		if err := p.WriteCoil(ctx, unit, start+uint16(i), v); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakePLC) WriteSingleRegister(_ context.Context, _ uint8, addr, value uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("link down")
	}
	p.regs[addr] = value
	return nil
}

func (p *fakePLC) WriteRegisters(_ context.Context, _ uint8, start uint16, values []uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("link down")
	}
	for i, v := range values {
		p.regs[start+uint16(i)] = v
	}
	return nil
}

// Coil addresses from testdata/nodes.yaml.
const (
	addrStartCmd      = 8500
	addrHandCmd       = 8506
	addrHandStatus    = 8507
	addrAutoCmd       = 8508
	addrInitCmd       = 8510
	addrInitStatus    = 8511
	addrRequestRec    = 8520
	addrRequestSend   = 8521
	addrSendMsgSucc   = 8522
	addrRecMsgSucc    = 8523
	addrSendBottleNum = 8524
	addrReceBottleNum = 8525
	addrSendFinished  = 8526
	addrReceFinished  = 8527
	addrGBIgnore      = 8540

	addrInteract      = 9000
	addrElecNum       = 9010
	addrElecUseNum    = 9011
	addrAssemblyType  = 9012
	addrElecVolume    = 9013
	addrPressure      = 9015
	addrVoltage       = 9100
	addrCoinNum       = 9108
	addrCoinCellCode  = 9110
	addrElectroCode   = 9120
)

func newTestStation(t *testing.T, sim *fakePLC) *Station {
	t.Helper()
	registry, err := plc.LoadRegistry("testdata/nodes.yaml", sim)
	require.NoError(t, err)

	st, err := New(registry, Config{
		PollInterval:     time.Millisecond,
		HandshakeTimeout: 500 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return st
}

// mirrorLifecycle makes the simulated controller answer every lifecycle
// command coil with its paired status coil.
func mirrorLifecycle(p *fakePLC, addr uint16, value bool) {
	pairs := map[uint16]uint16{
		addrStartCmd:   addrStartCmd + 1,
		8502:           8503,
		8504:           8505,
		addrHandCmd:    addrHandStatus,
		addrAutoCmd:    addrAutoCmd + 1,
		addrInitCmd:    addrInitStatus,
	}
	if status, ok := pairs[addr]; ok {
		p.setCoil(status, value)
	}
}

func TestInitializeSequence(t *testing.T) {
	sim := newFakePLC()
	sim.onCoilWrite = mirrorLifecycle
	st := newTestStation(t, sim)

	require.NoError(t, st.Initialize(context.Background()))

	// Everything deasserted once the sequence is through.
	assert.False(t, sim.coil(addrHandCmd))
	assert.False(t, sim.coil(addrInitCmd))
	assert.False(t, sim.coil(addrAutoCmd))
	assert.False(t, sim.coil(addrStartCmd))
}

func TestInitializePreconditionInteract(t *testing.T) {
	sim := newFakePLC()
	sim.regs[addrInteract] = 1
	st := newTestStation(t, sim)

	err := st.Initialize(context.Background())
	require.ErrorIs(t, err, ErrPrecondition)
	// No command was issued.
	assert.False(t, sim.coil(addrHandCmd))
}

func TestInitializePreconditionGloveBox(t *testing.T) {
	sim := newFakePLC()
	sim.coils[addrGBIgnore] = true
	st := newTestStation(t, sim)

	err := st.Initialize(context.Background())
	require.ErrorIs(t, err, ErrPrecondition)
}

func TestSendBottleCount(t *testing.T) {
	sim := newFakePLC()
	sim.coils[addrReceBottleNum] = true
	sim.onCoilWrite = func(p *fakePLC, addr uint16, value bool) {
		if addr == addrSendBottleNum && value {
			p.setCoil(addrReceBottleNum, false)
		}
	}
	st := newTestStation(t, sim)

	require.NoError(t, st.SendBottleCount(context.Background(), 2))
	assert.Equal(t, uint16(2), sim.reg(addrElecNum))
	assert.False(t, sim.coil(addrSendBottleNum))
}

func TestSendParameters(t *testing.T) {
	sim := newFakePLC()
	sim.coils[addrRequestRec] = true
	sim.onCoilWrite = func(p *fakePLC, addr uint16, value bool) {
		if addr == addrSendMsgSucc && value {
			p.setCoil(addrRequestRec, false)
		}
	}
	st := newTestStation(t, sim)

	recipe := batch.Recipe{
		AssemblyType:      7,
		ElectrolyteVolume: 50,
		AssemblyPressure:  4200,
	}
	require.NoError(t, st.SendParameters(context.Background(), 0, 3, recipe))

	assert.Equal(t, uint16(3), sim.reg(addrElecUseNum))
	assert.Equal(t, uint16(7), sim.reg(addrAssemblyType))

	// Float parameters land low word first.
	volBits := math.Float32bits(50)
	assert.Equal(t, uint16(volBits), sim.reg(addrElecVolume))
	assert.Equal(t, uint16(volBits>>16), sim.reg(addrElecVolume+1))
	pressBits := math.Float32bits(4200)
	assert.Equal(t, uint16(pressBits), sim.reg(addrPressure))

	// Acknowledgement coil released after the controller consumed the
	// parameters.
	assert.False(t, sim.coil(addrSendMsgSucc))
}

func TestSendParametersTimeout(t *testing.T) {
	sim := newFakePLC() // controller never asserts receive-ready
	st := newTestStation(t, sim)

	err := st.SendParameters(context.Background(), 0, 3, batch.Recipe{})
	require.ErrorIs(t, err, handshake.ErrTimeout)
}

func TestCollectUnit(t *testing.T) {
	sim := newFakePLC()
	sim.coils[addrRequestSend] = true
	sim.setFloat32Little(addrVoltage, 3.3)
	sim.regs[addrCoinNum] = 5
	// The scanner stores barcode characters pairwise swapped.
	sim.setString(addrCoinCellCode, "ECLL0010", 10)
	sim.setString(addrElectroCode, "LECE10", 10)
	sim.onCoilWrite = func(p *fakePLC, addr uint16, value bool) {
		if addr == addrRecMsgSucc && value {
			p.setCoil(addrRequestSend, false)
		}
	}
	st := newTestStation(t, sim)

	result, err := st.CollectUnit(context.Background(), 4)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Sequence)
	assert.InDelta(t, 3.3, result.OpenCircuitVoltage, 0.0001)
	assert.Equal(t, 5, result.CoinNum)
	assert.Equal(t, "CELL0001", result.CoinCellCode)
	assert.Equal(t, "ELEC01", result.ElectrolyteCode)
	assert.False(t, sim.coil(addrRecMsgSucc))
}

func TestCollectUnitEmptyRegisters(t *testing.T) {
	sim := newFakePLC()
	sim.coils[addrRequestSend] = true
	sim.onCoilWrite = func(p *fakePLC, addr uint16, value bool) {
		if addr == addrRecMsgSucc && value {
			p.setCoil(addrRequestSend, false)
		}
	}
	st := newTestStation(t, sim)

	result, err := st.CollectUnit(context.Background(), 0)
	require.NoError(t, err)

	// Empty register image reads as zeros and placeholder barcodes.
	assert.Zero(t, result.OpenCircuitVoltage)
	assert.Equal(t, "N/A", result.CoinCellCode)
	assert.Equal(t, "N/A", result.ElectrolyteCode)
}

func TestCheckPreconditionsLinkDown(t *testing.T) {
	sim := newFakePLC()
	st := newTestStation(t, sim)
	sim.failAll = true

	err := st.CheckPreconditions(context.Background())
	require.ErrorIs(t, err, ErrTransport)
}

func TestSignalComplete(t *testing.T) {
	sim := newFakePLC()
	sim.coils[addrReceFinished] = true
	sim.onCoilWrite = func(p *fakePLC, addr uint16, value bool) {
		if addr == addrSendFinished && value {
			p.setCoil(addrReceFinished, false)
		}
	}
	st := newTestStation(t, sim)

	require.NoError(t, st.SignalComplete(context.Background()))
	assert.False(t, sim.coil(addrSendFinished))
}

func TestStationAgainstEngine(t *testing.T) {
	// Full protocol sim: the engine drives the station against a
	// scripted controller through one complete N=1, M=2 batch.
	sim := newFakePLC()
	sim.coils[addrRequestRec] = true
	sim.setFloat32Little(addrVoltage, 3.21)
	sim.setString(addrCoinCellCode, "ECLL0010", 10)
	sim.setString(addrElectroCode, "LECE10", 10)
	sim.onCoilWrite = func(p *fakePLC, addr uint16, value bool) {
		switch {
		case addr == addrSendMsgSucc && value:
			p.setCoil(addrRequestRec, false)
			p.setCoil(addrRequestSend, true) // first cell ready
		case addr == addrRecMsgSucc && value:
			p.setCoil(addrRequestSend, false)
		case addr == addrRecMsgSucc && !value:
			p.mu.Lock()
			p.regs[addrCoinNum]++
			done := p.regs[addrCoinNum] >= 2
			p.mu.Unlock()
			if done {
				p.setCoil(addrReceFinished, true)
			} else {
				p.setCoil(addrRequestSend, true)
			}
		case addr == addrSendFinished && value:
			p.setCoil(addrReceFinished, false)
		}
	}
	st := newTestStation(t, sim)

	dir := t.TempDir()
	engine := batch.NewEngine(st,
		batch.NewCheckpointStore(dir+"/checkpoint.csv"),
		batch.NewResultLog(dir), zap.NewNop())

	summary, err := engine.Run(context.Background(), batch.Params{
		Bottles: 1, UnitsPerBottle: 2,
		Recipe: batch.Recipe{AssemblyType: 7, ElectrolyteVolume: 50, AssemblyPressure: 4200},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)
	for i, r := range summary.Results {
		assert.Equal(t, i, r.Sequence)
		assert.Equal(t, "CELL0001", r.CoinCellCode, fmt.Sprintf("result %d", i))
	}
}
