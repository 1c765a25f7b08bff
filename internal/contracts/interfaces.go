package contracts

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// External collaborators of the risk engine
// =============================================================================

// PositionSource supplies holdings and current prices
type PositionSource interface {
	Positions(ctx context.Context, portfolioID int64) ([]Position, error)
	Prices(ctx context.Context, instrumentKeys []string) (PriceMap, error)
}

// HistorySource supplies time-ordered (oldest first) closing prices per instrument
type HistorySource interface {
	PriceHistory(ctx context.Context, instrumentKeys []string, days int) (map[string][]decimal.Decimal, error)
}

// Notification is a (recipient, subject, body) message
type Notification struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Notifier delivers a notification to one sink
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
