package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		typ  ScalarType
		vals []any
	}{
		{"int16", TypeInt16, []any{int16(0), int16(1), int16(-1), int16(math.MaxInt16), int16(math.MinInt16)}},
		{"uint16", TypeUint16, []any{uint16(0), uint16(1), uint16(math.MaxUint16)}},
		{"int32", TypeInt32, []any{int32(0), int32(-1), int32(math.MaxInt32), int32(math.MinInt32)}},
		{"uint32", TypeUint32, []any{uint32(0), uint32(math.MaxUint32)}},
		{"int64", TypeInt64, []any{int64(0), int64(-1), int64(math.MaxInt64), int64(math.MinInt64)}},
		{"uint64", TypeUint64, []any{uint64(0), uint64(math.MaxUint64)}},
		{"float32", TypeFloat32, []any{float32(0), float32(-1.5), float32(3.14159), float32(math.MaxFloat32)}},
		{"float64", TypeFloat64, []any{float64(0), float64(-1.5), float64(2.718281828459045), math.MaxFloat64}},
	}

	for _, tc := range cases {
		for _, order := range []WordOrder{WordBig, WordLittle} {
			t.Run(tc.name+"/"+string(order), func(t *testing.T) {
				for _, v := range tc.vals {
					regs, err := Encode(v, tc.typ, order)
					require.NoError(t, err)

					got, err := Decode(regs, tc.typ, order)
					require.NoError(t, err)
					assert.Equal(t, v, got)
				}
			})
		}
	}
}

func TestWordOrderReversesRegisters(t *testing.T) {
	big, err := Encode(uint32(0x12345678), TypeUint32, WordBig)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0x5678}, big)

	little, err := Encode(uint32(0x12345678), TypeUint32, WordLittle)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x5678, 0x1234}, little)
}

func TestBoolEncode(t *testing.T) {
	regs, err := Encode(true, TypeBool, WordBig)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, regs)

	v, err := Decode(regs, TypeBool, WordBig)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	regs, err = Encode(false, TypeBool, WordBig)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0}, regs)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"AB", "ABCD1234", "odd"} {
		regs, err := Encode(s, TypeString, WordBig)
		require.NoError(t, err)

		got, err := Decode(regs, TypeString, WordBig)
		require.NoError(t, err)

		trimmed := ""
		for _, r := range got.(string) {
			if r != 0 {
				trimmed += string(r)
			}
		}
		assert.Equal(t, s, trimmed)
	}
}

func TestEncodeStringFixedWidth(t *testing.T) {
	regs := EncodeString("AB", 4, WordBig)
	require.Len(t, regs, 4)
	assert.Equal(t, uint16(0x4142), regs[0])
	assert.Equal(t, uint16(0), regs[1])

	// Truncated to the declared width.
	regs = EncodeString("ABCDEFGH", 2, WordBig)
	require.Len(t, regs, 2)
	assert.Equal(t, uint16(0x4142), regs[0])
	assert.Equal(t, uint16(0x4344), regs[1])
}

func TestDecodeStringConsumesAllRegisters(t *testing.T) {
	v, err := Decode([]uint16{0x4142, 0x4344}, TypeString, WordBig)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", v)
}

func TestUnsupportedType(t *testing.T) {
	_, err := Decode([]uint16{0}, ScalarType("int128"), WordBig)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Encode(1, ScalarType("int128"), WordBig)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDecodeShortSpan(t *testing.T) {
	_, err := Decode([]uint16{0x1234}, TypeFloat32, WordBig)
	assert.Error(t, err)
}

func TestRegisterCount(t *testing.T) {
	for typ, want := range map[ScalarType]uint16{
		TypeBool: 1, TypeInt16: 1, TypeUint16: 1,
		TypeInt32: 2, TypeUint32: 2, TypeFloat32: 2,
		TypeInt64: 4, TypeUint64: 4, TypeFloat64: 4,
	} {
		n, err := RegisterCount(typ, 0)
		require.NoError(t, err)
		assert.Equal(t, want, n, string(typ))
	}

	n, err := RegisterCount(TypeString, 9)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), n)
}

func TestZeroSentinels(t *testing.T) {
	assert.Equal(t, 0.0, Zero(TypeFloat32))
	assert.Equal(t, 0.0, Zero(TypeFloat64))
	assert.Equal(t, "", Zero(TypeString))
	assert.Equal(t, false, Zero(TypeBool))
	assert.Equal(t, 0, Zero(TypeInt16))
}
