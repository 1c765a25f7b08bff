package portfolio

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/pkg/config"
	"github.com/wonny/aegis-risk/pkg/database"
)

func TestRepository_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if testing.Short() || url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := database.New(ctx, &config.Config{Database: config.DatabaseConfig{
		URL:             url,
		Enabled:         true,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}})
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))
	t.Cleanup(db.Close)

	repo := NewRepository(db.Pool)
	const id = 987654
	key := "ITEST-" + time.Now().Format("150405.000")

	require.NoError(t, repo.SavePositions(ctx, id, []contracts.Position{
		{InstrumentKey: key, Quantity: decimal.NewFromInt(10), AveragePrice: decimal.NewFromInt(50)},
	}))
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(ctx, `DELETE FROM risk.positions WHERE portfolio_id = $1`, id)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM risk.prices WHERE instrument_key = $1`, key)
	})

	positions, err := repo.Positions(ctx, id)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].TotalCost.Equal(decimal.NewFromInt(500)))

	asOf := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveHistory(ctx, asOf, map[string][]decimal.Decimal{
		key: {decimal.NewFromInt(48), decimal.NewFromInt(49), decimal.NewFromInt(51)},
	}))
	require.NoError(t, repo.SavePrices(ctx, asOf, contracts.PriceMap{key: decimal.NewFromInt(52)}))

	prices, err := repo.Prices(ctx, []string{key})
	require.NoError(t, err)
	assert.True(t, prices[key].Equal(decimal.NewFromInt(52)))

	history, err := repo.PriceHistory(ctx, []string{key}, 10)
	require.NoError(t, err)
	assert.Len(t, history[key], 3)

	_, err = repo.Positions(ctx, id+1)
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
}
