package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/contracts"
)

// ErrPortfolioNotFound is returned when a portfolio has no positions
var ErrPortfolioNotFound = errors.New("portfolio not found")

// Repository reads holdings and prices from risk.positions and risk.prices.
// It implements contracts.PositionSource and contracts.HistorySource.
// SSOT: portfolio data is loaded only here
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new portfolio repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Positions returns the non-zero holdings of a portfolio ordered by instrument key
func (r *Repository) Positions(ctx context.Context, portfolioID int64) ([]contracts.Position, error) {
	query := `
		SELECT instrument_key, quantity::text, average_price::text
		FROM risk.positions
		WHERE portfolio_id = $1 AND quantity <> 0
		ORDER BY instrument_key
	`

	rows, err := r.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []contracts.Position
	for rows.Next() {
		var key, qtyStr, avgStr string
		if err := rows.Scan(&key, &qtyStr, &avgStr); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return nil, fmt.Errorf("bad quantity for %s: %w", key, err)
		}
		avg, err := decimal.NewFromString(avgStr)
		if err != nil {
			return nil, fmt.Errorf("bad average price for %s: %w", key, err)
		}

		positions = append(positions, contracts.Position{
			PortfolioID:   portfolioID,
			InstrumentKey: key,
			Quantity:      qty,
			AveragePrice:  avg,
			TotalCost:     qty.Mul(avg),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}
	return positions, nil
}

// Prices returns the latest close of every requested instrument that has one
func (r *Repository) Prices(ctx context.Context, instrumentKeys []string) (contracts.PriceMap, error) {
	query := `
		SELECT DISTINCT ON (instrument_key) instrument_key, close_price::text
		FROM risk.prices
		WHERE instrument_key = ANY($1)
		ORDER BY instrument_key, price_date DESC
	`

	rows, err := r.pool.Query(ctx, query, instrumentKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	prices := make(contracts.PriceMap, len(instrumentKeys))
	for rows.Next() {
		var key, closeStr string
		if err := rows.Scan(&key, &closeStr); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		price, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("bad close price for %s: %w", key, err)
		}
		prices[key] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return prices, nil
}

// PriceHistory returns up to days closes per instrument, oldest first
func (r *Repository) PriceHistory(ctx context.Context, instrumentKeys []string, days int) (map[string][]decimal.Decimal, error) {
	query := `
		SELECT instrument_key, close_price::text
		FROM (
			SELECT instrument_key, price_date, close_price,
				ROW_NUMBER() OVER (PARTITION BY instrument_key ORDER BY price_date DESC) AS rn
			FROM risk.prices
			WHERE instrument_key = ANY($1)
		) t
		WHERE rn <= $2
		ORDER BY instrument_key, price_date
	`

	rows, err := r.pool.Query(ctx, query, instrumentKeys, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]decimal.Decimal, len(instrumentKeys))
	for rows.Next() {
		var key, closeStr string
		if err := rows.Scan(&key, &closeStr); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		price, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("bad close price for %s: %w", key, err)
		}
		history[key] = append(history[key], price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return history, nil
}

// SavePositions replaces the holdings of a portfolio
func (r *Repository) SavePositions(ctx context.Context, portfolioID int64, positions []contracts.Position) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM risk.positions WHERE portfolio_id = $1`, portfolioID); err != nil {
		return fmt.Errorf("failed to delete old positions: %w", err)
	}

	query := `
		INSERT INTO risk.positions (portfolio_id, instrument_key, quantity, average_price)
		VALUES ($1, $2, $3::numeric, $4::numeric)
	`
	for _, p := range positions {
		if _, err := tx.Exec(ctx, query, portfolioID, p.InstrumentKey, p.Quantity.String(), p.AveragePrice.String()); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", p.InstrumentKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveHistory upserts daily closes. The last element of each series is dated asOf
// and earlier elements step back one calendar day each.
func (r *Repository) SaveHistory(ctx context.Context, asOf time.Time, history map[string][]decimal.Decimal) error {
	query := `
		INSERT INTO risk.prices (instrument_key, price_date, close_price)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (instrument_key, price_date) DO UPDATE SET close_price = EXCLUDED.close_price
	`

	batch := &pgx.Batch{}
	day := asOf.Truncate(24 * time.Hour)
	for key, series := range history {
		for i, price := range series {
			date := day.AddDate(0, 0, i-len(series)+1)
			batch.Queue(query, key, date, price.String())
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save prices: %w", err)
	}
	return nil
}

// SavePrices stores the current prices as closes dated asOf
func (r *Repository) SavePrices(ctx context.Context, asOf time.Time, prices contracts.PriceMap) error {
	history := make(map[string][]decimal.Decimal, len(prices))
	for key, p := range prices {
		history[key] = []decimal.Decimal{p}
	}
	return r.SaveHistory(ctx, asOf, history)
}
