package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeScannedCode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"pair swap", "ECLL0010", "CELL0001"},
		{"trailing nuls", "LECE10\x00\x00", "ELEC01"},
		{"longer than eight", "ECLL0010EXTRA", "CELL0001"},
		{"odd length", "ECLL0", "CELL0"},
		{"line endings stripped", "B\rA\n12", "BA21"},
		{"whitespace trimmed", "AB12 \x00\x00\x00", "BA21"},
		{"empty", "", "N/A"},
		{"all nuls", "\x00\x00\x00\x00", "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeScannedCode(tt.raw))
		})
	}
}
