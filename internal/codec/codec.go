package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ScalarType identifies the typed interpretation of one or more 16-bit
// registers.
type ScalarType string

const (
	TypeBool    ScalarType = "bool"
	TypeInt16   ScalarType = "int16"
	TypeUint16  ScalarType = "uint16"
	TypeInt32   ScalarType = "int32"
	TypeUint32  ScalarType = "uint32"
	TypeInt64   ScalarType = "int64"
	TypeUint64  ScalarType = "uint64"
	TypeFloat32 ScalarType = "float32"
	TypeFloat64 ScalarType = "float64"
	TypeString  ScalarType = "string"
)

// WordOrder controls the order in which 16-bit registers are concatenated
// into a wider value. Byte order inside a single register is always
// big-endian.
type WordOrder string

const (
	WordBig    WordOrder = "big"
	WordLittle WordOrder = "little"
)

var ErrUnsupportedType = errors.New("codec: unsupported scalar type")

// RegisterCount returns how many registers a value of the given type
// occupies. For TypeString the count is derived from charCount.
func RegisterCount(t ScalarType, charCount int) (uint16, error) {
	switch t {
	case TypeBool, TypeInt16, TypeUint16:
		return 1, nil
	case TypeInt32, TypeUint32, TypeFloat32:
		return 2, nil
	case TypeInt64, TypeUint64, TypeFloat64:
		return 4, nil
	case TypeString:
		return uint16((charCount + 1) / 2), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// Decode interprets a register span as a typed value.
func Decode(regs []uint16, t ScalarType, order WordOrder) (any, error) {
	if t == TypeString {
		return string(bytesFromRegisters(regs, order)), nil
	}

	want, err := RegisterCount(t, 0)
	if err != nil {
		return nil, err
	}
	if len(regs) < int(want) {
		return nil, fmt.Errorf("codec: %s needs %d registers, got %d", t, want, len(regs))
	}

	buf := bytesFromRegisters(regs[:want], order)

	switch t {
	case TypeBool:
		return binary.BigEndian.Uint16(buf) != 0, nil
	case TypeInt16:
		return int16(binary.BigEndian.Uint16(buf)), nil
	case TypeUint16:
		return binary.BigEndian.Uint16(buf), nil
	case TypeInt32:
		return int32(binary.BigEndian.Uint32(buf)), nil
	case TypeUint32:
		return binary.BigEndian.Uint32(buf), nil
	case TypeInt64:
		return int64(binary.BigEndian.Uint64(buf)), nil
	case TypeUint64:
		return binary.BigEndian.Uint64(buf), nil
	case TypeFloat32:
		return math.Float32frombits(binary.BigEndian.Uint32(buf)), nil
	case TypeFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// Encode serializes a typed value into a register span. Strings are padded
// with NUL bytes up to the next register boundary; use EncodeString to pad
// or truncate to a fixed field width.
func Encode(value any, t ScalarType, order WordOrder) ([]uint16, error) {
	switch t {
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("codec: bool value required, got %T", value)
		}
		if b {
			return []uint16{1}, nil
		}
		return []uint16{0}, nil

	case TypeInt16, TypeInt32, TypeInt64:
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return encodeBits(uint64(v), t, order)

	case TypeUint16, TypeUint32, TypeUint64:
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return encodeBits(uint64(v), t, order)

	case TypeFloat32:
		f, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return encodeBits(uint64(math.Float32bits(float32(f))), t, order)

	case TypeFloat64:
		f, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return encodeBits(math.Float64bits(f), t, order)

	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("codec: string value required, got %T", value)
		}
		return EncodeString(s, uint16((len(s)+1)/2), order), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// EncodeString pads or truncates s to exactly regCount registers.
func EncodeString(s string, regCount uint16, order WordOrder) []uint16 {
	buf := make([]byte, int(regCount)*2)
	copy(buf, s)
	return registersFromBytes(buf, order)
}

func encodeBits(bits uint64, t ScalarType, order WordOrder) ([]uint16, error) {
	count, err := RegisterCount(t, 0)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, int(count)*2)
	switch count {
	case 1:
		binary.BigEndian.PutUint16(buf, uint16(bits))
	case 2:
		binary.BigEndian.PutUint32(buf, uint32(bits))
	case 4:
		binary.BigEndian.PutUint64(buf, bits)
	}

	return registersFromBytes(buf, order), nil
}

// bytesFromRegisters lays the registers out as a big-endian byte buffer.
// WordLittle reverses the register sequence, not the bytes within one.
func bytesFromRegisters(regs []uint16, order WordOrder) []byte {
	buf := make([]byte, len(regs)*2)
	for i, r := range regs {
		pos := i
		if order == WordLittle {
			pos = len(regs) - 1 - i
		}
		binary.BigEndian.PutUint16(buf[pos*2:], r)
	}
	return buf
}

func registersFromBytes(buf []byte, order WordOrder) []uint16 {
	regs := make([]uint16, len(buf)/2)
	for i := range regs {
		pos := i
		if order == WordLittle {
			pos = len(regs) - 1 - i
		}
		regs[pos] = binary.BigEndian.Uint16(buf[i*2:])
	}
	return regs
}

// Zero returns the sentinel value a failed read reports for the given type.
func Zero(t ScalarType) any {
	switch t {
	case TypeFloat32, TypeFloat64:
		return 0.0
	case TypeString:
		return ""
	case TypeBool:
		return false
	default:
		return 0
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("codec: integer value required, got %T", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("codec: float value required, got %T", value)
	}
}
