package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
)

// File is the JSON portfolio snapshot used by the CLI and when the database is disabled
//
//	{
//	  "portfolio_id": 1,
//	  "positions": [{"instrument_key": "005930", "quantity": "100", "average_price": "70000"}],
//	  "prices": {"005930": "72000"},
//	  "history": {"005930": ["70000", "71000", "72000"]},
//	  "benchmark": ["0.001", "-0.002"]
//	}
type File struct {
	PortfolioID int64                        `json:"portfolio_id"`
	Positions   []FilePosition               `json:"positions"`
	Prices      map[string]decimal.Decimal   `json:"prices"`
	History     map[string][]decimal.Decimal `json:"history,omitempty"`
	Benchmark   []decimal.Decimal            `json:"benchmark,omitempty"`
}

// FilePosition is one holding in a File
type FilePosition struct {
	InstrumentKey string          `json:"instrument_key"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
}

// FileSource serves a loaded File as a position and history source
type FileSource struct {
	file File
}

// LoadFile reads and validates a portfolio file
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes a portfolio file
func ParseFile(data []byte) (*FileSource, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio file: %w", err)
	}
	if f.PortfolioID <= 0 {
		return nil, fmt.Errorf("portfolio file: portfolio_id must be > 0")
	}
	if len(f.Positions) == 0 {
		return nil, fmt.Errorf("portfolio file: no positions")
	}
	for _, p := range f.Positions {
		if p.InstrumentKey == "" {
			return nil, fmt.Errorf("portfolio file: position without instrument_key")
		}
	}
	return &FileSource{file: f}, nil
}

// PortfolioID returns the id declared in the file
func (s *FileSource) PortfolioID() int64 { return s.file.PortfolioID }

// Benchmark returns the benchmark return series, if any
func (s *FileSource) Benchmark() []decimal.Decimal { return s.file.Benchmark }

// Positions implements contracts.PositionSource
func (s *FileSource) Positions(_ context.Context, portfolioID int64) ([]contracts.Position, error) {
	if portfolioID != s.file.PortfolioID {
		return nil, fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}

	positions := make([]contracts.Position, 0, len(s.file.Positions))
	for _, p := range s.file.Positions {
		if p.Quantity.IsZero() {
			continue
		}
		positions = append(positions, contracts.Position{
			PortfolioID:   s.file.PortfolioID,
			InstrumentKey: p.InstrumentKey,
			Quantity:      p.Quantity,
			AveragePrice:  p.AveragePrice,
			TotalCost:     p.Quantity.Mul(p.AveragePrice),
		})
	}
	return positions, nil
}

// Prices implements contracts.PositionSource
func (s *FileSource) Prices(_ context.Context, instrumentKeys []string) (contracts.PriceMap, error) {
	prices := make(contracts.PriceMap, len(instrumentKeys))
	for _, k := range instrumentKeys {
		if p, ok := s.file.Prices[k]; ok {
			prices[k] = p
		}
	}
	return prices, nil
}

// PriceHistory implements contracts.HistorySource
func (s *FileSource) PriceHistory(_ context.Context, instrumentKeys []string, days int) (map[string][]decimal.Decimal, error) {
	out := make(map[string][]decimal.Decimal, len(instrumentKeys))
	for _, k := range instrumentKeys {
		series, ok := s.file.History[k]
		if !ok {
			continue
		}
		if days > 0 && len(series) > days {
			series = series[len(series)-days:]
		}
		out[k] = append([]decimal.Decimal(nil), series...)
	}
	return out, nil
}
