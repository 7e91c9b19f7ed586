package plc

import (
	"testing"

	"github.com/deepmodeling/coincell-station/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `
nodes:
  - name: COIL_SYS_START_CMD
    address: 800
    kind: coil
    description: system start command
  - name: COIL_SYS_START_STATUS
    address: 900
    kind: coil
  - name: REG_DATA_OPEN_CIRCUIT_VOLTAGE
    address: 1010
    kind: holding_register
    type: float32
    word_order: little
  - name: REG_DATA_COIN_NUM
    address: 1020
    kind: holding_register
    type: int16
`

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(sampleTable), &fakeTransport{})
	require.NoError(t, err)
	assert.Equal(t, 4, reg.Len())

	node, err := reg.Node("REG_DATA_OPEN_CIRCUIT_VOLTAGE")
	require.NoError(t, err)
	assert.Equal(t, uint16(1010), node.Address)
	assert.Equal(t, KindHoldingRegister, node.Kind)
	assert.Equal(t, codec.TypeFloat32, node.DataType)
	assert.Equal(t, codec.WordLittle, node.Order)
}

func TestParseRegistryUnknownName(t *testing.T) {
	reg, err := ParseRegistry([]byte(sampleTable), &fakeTransport{})
	require.NoError(t, err)

	_, err = reg.Node("REG_DOES_NOT_EXIST")
	assert.Error(t, err)
}

func TestParseRegistryDuplicateName(t *testing.T) {
	table := `
nodes:
  - name: COIL_A
    address: 1
    kind: coil
  - name: COIL_A
    address: 2
    kind: coil
`
	_, err := ParseRegistry([]byte(table), &fakeTransport{})
	assert.ErrorContains(t, err, "duplicate")
}

func TestParseRegistrySchemaRejectsBadKind(t *testing.T) {
	table := `
nodes:
  - name: X
    address: 1
    kind: not_a_kind
`
	_, err := ParseRegistry([]byte(table), &fakeTransport{})
	assert.ErrorContains(t, err, "validation")
}

func TestParseRegistrySchemaRejectsMissingAddress(t *testing.T) {
	table := `
nodes:
  - name: X
    kind: coil
`
	_, err := ParseRegistry([]byte(table), &fakeTransport{})
	assert.Error(t, err)
}
