package charge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"10.00", 1000, false},
		{"10", 1000, false},
		{"0.01", 1, false},
		{" 99.99 ", 9999, false},
		{"10.5", 1050, false},
		{"007.10", 710, false},
		{"999999999999.99", 999999999999_99, false},
		{"1000000000000.00", 0, true},
		{"99999999999999999999", 0, true},
		{"1.234", 0, true},
		{"10.", 0, true},
		{".50", 0, true},
		{"0.001", 0, true},
		{"0", 0, true},
		{"0.00", 0, true},
		{"-5.00", 0, true},
		{"+5.00", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"1e2", 0, true},
		{"1e300", 0, true},
		{"0x1p4", 0, true},
		{"1_000", 0, true},
		{"10,50", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{1000, "10.00"},
		{1, "0.01"},
		{99, "0.99"},
		{12345, "123.45"},
		{-150, "-1.50"},
		{0, "0.00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCents(tt.cents))
	}
}

func TestCentsToFloat(t *testing.T) {
	assert.Equal(t, 10.0, CentsToFloat(1000))
	assert.Equal(t, 0.01, CentsToFloat(1))
	assert.True(t, math.Abs(CentsToFloat(12345)-123.45) < 1e-9)
}
