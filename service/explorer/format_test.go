package explorer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLamportsToSOLString(t *testing.T) {
	tests := []struct {
		lamports    uint64
		maxFraction int
		want        string
	}{
		{0, 9, "0"},
		{1, 9, "0.000000001"},
		{1_500_000_000, 9, "1.5"},
		{8_499_995_000, 9, "8.499995"},
		{1_234_567_890_000_000_000, 0, "1,234,567,890"},
		{1_500_000_000, 0, "2"},
		{1_499_999_999, 0, "1"},
		{999_999_999_999, 2, "1,000"},
		{1_234_560_000, 2, "1.23"},
		{5000, 20, "0.000005"},
		{5000, -1, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LamportsToSOLString(tt.lamports, tt.maxFraction), "lamports=%d max=%d", tt.lamports, tt.maxFraction)
	}
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "0", FormatDelta(0))
	assert.Equal(t, "+1.5", FormatDelta(1_500_000_000))
	assert.Equal(t, "-1.500005", FormatDelta(-1_500_005_000))
}

func TestFormatTokenAmount(t *testing.T) {
	huge, _ := new(big.Int).SetString("18446744073709551616000", 10)

	tests := []struct {
		name     string
		raw      *big.Int
		decimals uint8
		want     string
	}{
		{"nil", nil, 6, "0"},
		{"six decimals", big.NewInt(3_000_000), 6, "3.000000"},
		{"no decimals", big.NewInt(12345), 0, "12,345"},
		{"beyond uint64", huge, 9, "18,446,744,073,709.551616000"},
		{"capped at nine", big.NewInt(1_500_000_000_000), 12, "1.500000000"},
		{"rounds when capped", big.NewInt(1999), 12, "0.000000002"},
		{"negative shown as magnitude", big.NewInt(-25), 1, "2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTokenAmount(tt.raw, tt.decimals))
		})
	}
}

func TestFormatSlotAndEpoch(t *testing.T) {
	assert.Equal(t, "12", FormatSlot(12))
	assert.Equal(t, "1,000", FormatSlot(1000))
	assert.Equal(t, "123,456,789", FormatSlot(123456789))
	assert.Equal(t, "512", FormatEpoch(512))
	assert.Equal(t, "1,400,000", FormatCount(1_400_000))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "Nov 14, 2023 at 22:13:20 UTC", FormatTimestamp(1_700_000_000))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "EPjF...Dt1v", ShortAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
	assert.Equal(t, "short", ShortAddress("short"))
}
