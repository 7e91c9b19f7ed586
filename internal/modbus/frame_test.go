package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecode(t *testing.T) {
	req := readRequest(1, FuncReadHoldingRegisters, 0x0010, 2)
	req.TransactionID = 42

	raw := req.Encode()
	require.Len(t, raw, 12)

	decoded, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), decoded.TransactionID)
	assert.Equal(t, uint8(1), decoded.UnitID)
	assert.Equal(t, uint8(FuncReadHoldingRegisters), decoded.FunctionCode)
	assert.Equal(t, []byte{0x00, 0x10, 0x00, 0x02}, decoded.Data)
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, err := DecodeFrame([]byte{0, 1, 0, 0})
	assert.Error(t, err)
}

func TestDecodeFrameBadProtocol(t *testing.T) {
	raw := (&Frame{ProtocolID: 0x0001, FunctionCode: FuncReadCoils}).Encode()
	_, err := DecodeFrame(raw)
	assert.Error(t, err)
}

func TestParseRegisterResponse(t *testing.T) {
	f := &Frame{
		FunctionCode: FuncReadHoldingRegisters,
		Data:         []byte{4, 0x12, 0x34, 0x56, 0x78},
	}

	regs, err := f.ParseRegisterResponse()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0x5678}, regs)
}

func TestParseBitResponse(t *testing.T) {
	// 0b00000101: coils 0 and 2 set
	f := &Frame{
		FunctionCode: FuncReadCoils,
		Data:         []byte{1, 0x05},
	}

	bits, err := f.ParseBitResponse(3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, bits)
}

func TestExceptionResponse(t *testing.T) {
	f := &Frame{
		FunctionCode: FuncReadHoldingRegisters | 0x80,
		Data:         []byte{0x02},
	}

	err := f.Exception()
	require.Error(t, err)

	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, uint8(0x02), exc.ExceptionCode)

	_, err = f.ParseRegisterResponse()
	assert.Error(t, err)
}

func TestWriteRegistersRequest(t *testing.T) {
	f := writeRegistersRequest(1, 0x0100, []uint16{0xAABB, 0xCCDD})
	assert.Equal(t, uint8(FuncWriteMultipleRegisters), f.FunctionCode)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x02, 0x04, 0xAA, 0xBB, 0xCC, 0xDD}, f.Data)
}

func TestWriteCoilsRequest(t *testing.T) {
	f := writeCoilsRequest(1, 0x0020, []bool{true, false, true, true})
	assert.Equal(t, uint8(FuncWriteMultipleCoils), f.FunctionCode)
	assert.Equal(t, []byte{0x00, 0x20, 0x00, 0x04, 0x01, 0x0D}, f.Data)
}
