package portfolio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "portfolio_id": 7,
  "positions": [
    {"instrument_key": "A", "quantity": "100", "average_price": "90"},
    {"instrument_key": "B", "quantity": "0", "average_price": "10"},
    {"instrument_key": "C", "quantity": "-20", "average_price": "50"}
  ],
  "prices": {"A": "100", "C": "55", "Z": "1"},
  "history": {"A": ["95", "97", "99", "100"]},
  "benchmark": ["0.01", "-0.02"]
}`

func TestParseFile(t *testing.T) {
	src, err := ParseFile([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, int64(7), src.PortfolioID())
	assert.Len(t, src.Benchmark(), 2)

	positions, err := src.Positions(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "A", positions[0].InstrumentKey)
	assert.True(t, positions[0].TotalCost.Equal(decimal.NewFromInt(9000)))
	assert.True(t, positions[1].Quantity.IsNegative())

	prices, err := src.Prices(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.True(t, prices["C"].Equal(decimal.NewFromInt(55)))
}

func TestFileSource_WrongPortfolio(t *testing.T) {
	src, err := ParseFile([]byte(sample))
	require.NoError(t, err)

	_, err = src.Positions(context.Background(), 8)
	assert.True(t, errors.Is(err, ErrPortfolioNotFound))
}

func TestFileSource_PriceHistoryKeepsNewest(t *testing.T) {
	src, err := ParseFile([]byte(sample))
	require.NoError(t, err)

	history, err := src.PriceHistory(context.Background(), []string{"A", "C"}, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, history["A"], 2)
	assert.True(t, history["A"][0].Equal(decimal.NewFromInt(99)))
	assert.True(t, history["A"][1].Equal(decimal.NewFromInt(100)))
}

func TestParseFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing id", `{"positions": [{"instrument_key": "A", "quantity": "1"}]}`},
		{"no positions", `{"portfolio_id": 1}`},
		{"blank key", `{"portfolio_id": 1, "positions": [{"quantity": "1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	src, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), src.PortfolioID())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
