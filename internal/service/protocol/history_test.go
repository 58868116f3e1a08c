package protocol

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHistory(t *testing.T) {
	raw := []byte(`[
		{"time": "2024-10-11", "open": 82, "high": 83.5, "low": 81.2, "close": 83.1, "volume": 1200000},
		{"time": "2024-10-10", "open": 80.5, "high": 82.4, "low": 80.1, "close": 82, "volume": 980000}
	]`)

	candles, err := DecodeHistory(raw)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), candles[0].Time)
	assert.True(t, candles[0].Close.Equal(decimal.NewFromInt(82)))
	assert.True(t, candles[1].High.Equal(decimal.RequireFromString("83.5")))
	assert.Equal(t, 1200000.0, candles[1].Volume)
}

func TestDecodeHistoryErrors(t *testing.T) {
	_, err := DecodeHistory([]byte(`{"error": "No data found, symbol may be delisted"}`))
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "delisted")

	empty, err := DecodeHistory([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, raw := range []string{``, `null`, `{}`, `[{"time": "yesterday"}]`, `[1,2]`} {
		_, err := DecodeHistory([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}
