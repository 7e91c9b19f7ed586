package plc

import (
	"context"
	"errors"
	"fmt"

	"github.com/deepmodeling/coincell-station/internal/codec"
)

// Transport is the set of Modbus primitives a node needs. Satisfied by
// *modbus.Client; tests substitute fakes.
type Transport interface {
	ReadCoils(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error)
	ReadDiscreteInputs(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error)
	ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error)
	ReadInputRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error)
	WriteCoil(ctx context.Context, unitID uint8, addr uint16, value bool) error
	WriteCoils(ctx context.Context, unitID uint8, startAddr uint16, values []bool) error
	WriteSingleRegister(ctx context.Context, unitID uint8, addr, value uint16) error
	WriteRegisters(ctx context.Context, unitID uint8, startAddr uint16, values []uint16) error
}

// Kind determines the legal operations and wire function codes of a node.
type Kind string

const (
	KindCoil            Kind = "coil"
	KindDiscreteInput   Kind = "discrete_input"
	KindHoldingRegister Kind = "holding_register"
	KindInputRegister   Kind = "input_register"
)

var (
	ErrMissingType          = errors.New("plc: no scalar type configured for node")
	ErrUnsupportedOperation = errors.New("plc: operation not supported by node kind")
)

// Node is one addressable point on the controller. Nodes are built once
// at startup by the registry and never mutated afterwards.
type Node struct {
	Name     string
	Address  uint16
	Kind     Kind
	DataType codec.ScalarType // optional default; "" means caller must supply one
	Order    codec.WordOrder
	Unit     uint8

	transport Transport
}

type readConfig struct {
	dataType codec.ScalarType
	order    codec.WordOrder
	unit     uint8
}

// Option overrides a node default for a single read or write.
type Option func(*readConfig)

func WithType(t codec.ScalarType) Option {
	return func(c *readConfig) { c.dataType = t }
}

func WithOrder(o codec.WordOrder) Option {
	return func(c *readConfig) { c.order = o }
}

func WithUnit(unit uint8) Option {
	return func(c *readConfig) { c.unit = unit }
}

func (n *Node) config(opts []Option) readConfig {
	cfg := readConfig{
		dataType: n.DataType,
		order:    n.Order,
		unit:     n.Unit,
	}
	if cfg.order == "" {
		cfg.order = codec.WordBig
	}
	if cfg.unit == 0 {
		cfg.unit = 1
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Read reads count registers (or coils) from the node and decodes them.
//
// Transport failures are never returned as the error: the node reports
// them through the fault flag and a type-appropriate zero value, so
// callers must check the flag rather than the value. The error return is
// reserved for protocol misuse (no resolvable type, bad decode).
func (n *Node) Read(ctx context.Context, count uint16, opts ...Option) (value any, fault bool, err error) {
	cfg := n.config(opts)

	if n.Kind == KindCoil {
		bits, rerr := n.transport.ReadCoils(ctx, cfg.unit, n.Address, count)
		if rerr != nil {
			return []bool{}, true, nil
		}
		return bits, false, nil
	}

	if cfg.dataType == "" {
		return nil, false, fmt.Errorf("%w: %s", ErrMissingType, n.Name)
	}

	var regs []uint16
	var rerr error

	switch n.Kind {
	case KindDiscreteInput:
		var bits []bool
		bits, rerr = n.transport.ReadDiscreteInputs(ctx, cfg.unit, n.Address, count)
		if rerr == nil {
			regs = packBits(bits)
		}
	case KindHoldingRegister:
		regs, rerr = n.transport.ReadHoldingRegisters(ctx, cfg.unit, n.Address, count)
	case KindInputRegister:
		regs, rerr = n.transport.ReadInputRegisters(ctx, cfg.unit, n.Address, count)
	default:
		return nil, false, fmt.Errorf("plc: unknown node kind %q", n.Kind)
	}

	if rerr != nil {
		return codec.Zero(cfg.dataType), true, nil
	}

	value, derr := codec.Decode(regs, cfg.dataType, cfg.order)
	if derr != nil {
		return nil, false, fmt.Errorf("decode %s: %w", n.Name, derr)
	}

	return value, false, nil
}

// ReadBool is a convenience for single-bit command/status nodes.
func (n *Node) ReadBool(ctx context.Context, opts ...Option) (bool, bool) {
	if n.Kind == KindCoil || n.Kind == KindDiscreteInput {
		value, fault, err := n.Read(ctx, 1, append(opts, WithType(codec.TypeBool))...)
		if err != nil || fault {
			return false, true
		}
		if bits, ok := value.([]bool); ok {
			return len(bits) > 0 && bits[0], false
		}
		b, _ := value.(bool)
		return b, false
	}

	value, fault, err := n.Read(ctx, 1, opts...)
	if err != nil || fault {
		return false, true
	}
	switch v := value.(type) {
	case bool:
		return v, false
	case int16:
		return v != 0, false
	case uint16:
		return v != 0, false
	default:
		return false, true
	}
}

// Write encodes value and writes it to the node. The fault flag reports
// transport failure; the error reports protocol misuse (read-only kind,
// unencodable value).
func (n *Node) Write(ctx context.Context, value any, opts ...Option) (fault bool, err error) {
	cfg := n.config(opts)

	switch n.Kind {
	case KindDiscreteInput, KindInputRegister:
		return false, fmt.Errorf("%w: %s is read-only", ErrUnsupportedOperation, n.Name)

	case KindCoil:
		switch v := value.(type) {
		case bool:
			return n.transport.WriteCoil(ctx, cfg.unit, n.Address, v) != nil, nil
		case []bool:
			return n.transport.WriteCoils(ctx, cfg.unit, n.Address, v) != nil, nil
		default:
			return false, fmt.Errorf("plc: coil %s accepts bool or []bool, got %T", n.Name, value)
		}

	case KindHoldingRegister:
		// Raw single-register writes for bools and small ints; the codec
		// handles every multi-register value.
		switch v := value.(type) {
		case bool:
			raw := uint16(0)
			if v {
				raw = 1
			}
			return n.transport.WriteSingleRegister(ctx, cfg.unit, n.Address, raw) != nil, nil
		case int:
			return n.transport.WriteSingleRegister(ctx, cfg.unit, n.Address, uint16(v)) != nil, nil
		case int16:
			return n.transport.WriteSingleRegister(ctx, cfg.unit, n.Address, uint16(v)) != nil, nil
		case uint16:
			return n.transport.WriteSingleRegister(ctx, cfg.unit, n.Address, v) != nil, nil
		}

		if cfg.dataType == "" {
			return false, fmt.Errorf("%w: %s", ErrMissingType, n.Name)
		}

		regs, eerr := codec.Encode(value, cfg.dataType, cfg.order)
		if eerr != nil {
			return false, fmt.Errorf("encode %s: %w", n.Name, eerr)
		}
		return n.transport.WriteRegisters(ctx, cfg.unit, n.Address, regs) != nil, nil

	default:
		return false, fmt.Errorf("plc: unknown node kind %q", n.Kind)
	}
}

// packBits folds a bit response into 16-bit registers, LSB first, so the
// codec can decode discrete inputs like any other register span.
func packBits(bits []bool) []uint16 {
	regs := make([]uint16, (len(bits)+15)/16)
	for i, b := range bits {
		if b {
			regs[i/16] |= 1 << (i % 16)
		}
	}
	return regs
}
