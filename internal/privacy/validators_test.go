package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidLuhn(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"4111111111111111", true},
		{"4111 1111 1111 1111", true},
		{"4111-1111-1111-1111", true},
		{"5500 0000 0000 0004", true},
		{"3782 822463 10005", true},
		{"4111111111111112", false},
		{"411111111111", false}, // too short
		{"4111x11111111111", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidLuhn(tt.input))
		})
	}
}

func TestValidIBAN(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"AT61 1904 3002 3457 3201", true},
		{"AT611904300234573201", true},
		{"at61 1904 3002 3457 3201", true},
		{"DE89 3704 0044 0532 0130 00", true},
		{"GB82 WEST 1234 5698 7654 32", true},
		{"AT61 1904 3002 3457 3202", false},
		{"AT61 1904", false},                                  // too short
		{"AT61 1904 3002 3457 3201 1234 5678 9012 3456", false}, // too long
		{"AT61 1904 3002 3457 32-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIBAN(tt.input))
		})
	}
}

func TestValidVIN(t *testing.T) {
	assert.True(t, ValidVIN("1HGCM82633A004352"))
	assert.True(t, ValidVIN("WVWZZZ1JZXW000001"))
	assert.False(t, ValidVIN("1HGCM82633A00435"), "16 characters")
	assert.False(t, ValidVIN("1HGCM82633A0O4352"), "contains O")
	assert.False(t, ValidVIN("1HGCM82633A0I4352"), "contains I")
	assert.False(t, ValidVIN("1HGCM82633A0Q4352"), "contains Q")
	assert.False(t, ValidVIN("1hgcm82633a004352"), "lowercase")
}
