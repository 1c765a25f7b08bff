package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-risk/internal/monitor"
	"github.com/wonny/aegis-risk/internal/risk"
	"github.com/wonny/aegis-risk/internal/stress"
)

// =============================================================================
// Stress results
// =============================================================================

// StressResultRepository persists stress test results
type StressResultRepository struct {
	pool *pgxpool.Pool
}

func NewStressResultRepository(pool *pgxpool.Pool) *StressResultRepository {
	return &StressResultRepository{pool: pool}
}

// Save stores results in one transaction
func (r *StressResultRepository) Save(ctx context.Context, results ...*stress.Result) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, res := range results {
		payload, err := encode(res)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO risk.stress_results (id, scenario_id, portfolio_id, executed_at, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`,
			res.TestID, res.ScenarioID, res.PortfolioID, res.ExecutedAt, payload)
		if err != nil {
			return fmt.Errorf("failed to save stress result %s: %w", res.TestID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID returns ErrNotFound for unknown test ids
func (r *StressResultRepository) FindByID(ctx context.Context, testID string) (*stress.Result, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM risk.stress_results WHERE id = $1`, testID).Scan(&payload)
	if err != nil {
		return nil, notFound(err, ErrNotFound, testID)
	}
	var res stress.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("failed to decode stress result: %w", err)
	}
	return &res, nil
}

// Latest returns the most recent results of a portfolio, newest first
func (r *StressResultRepository) Latest(ctx context.Context, portfolioID int64, limit int) ([]*stress.Result, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload FROM risk.stress_results
		WHERE portfolio_id = $1
		ORDER BY executed_at DESC, id
		LIMIT $2`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stress results: %w", err)
	}
	defer rows.Close()

	var out []*stress.Result
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var res stress.Result
		if err := json.Unmarshal(payload, &res); err != nil {
			return nil, fmt.Errorf("failed to decode stress result: %w", err)
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// =============================================================================
// Simulations
// =============================================================================

// SimulationRepository persists Monte Carlo simulation summaries
type SimulationRepository struct {
	pool *pgxpool.Pool
}

func NewSimulationRepository(pool *pgxpool.Pool) *SimulationRepository {
	return &SimulationRepository{pool: pool}
}

// Save stores the statistics and asset paths; per-run final values are not persisted
func (r *SimulationRepository) Save(ctx context.Context, sim *risk.MonteCarloSimulation) error {
	payload, err := encode(sim)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO risk.simulations (id, created_at, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`,
		sim.ID, sim.CreatedAt, payload)
	if err != nil {
		return fmt.Errorf("failed to save simulation %s: %w", sim.ID, err)
	}
	return nil
}

func (r *SimulationRepository) FindByID(ctx context.Context, id string) (*risk.MonteCarloSimulation, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM risk.simulations WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		return nil, notFound(err, ErrNotFound, id)
	}
	var sim risk.MonteCarloSimulation
	if err := json.Unmarshal(payload, &sim); err != nil {
		return nil, fmt.Errorf("failed to decode simulation: %w", err)
	}
	return &sim, nil
}

// =============================================================================
// Alerts
// =============================================================================

// AlertRepository persists the alert ledger so open alerts survive restarts
type AlertRepository struct {
	pool *pgxpool.Pool
}

func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// Save inserts or updates alerts (status transitions rewrite the row)
func (r *AlertRepository) Save(ctx context.Context, alerts ...monitor.Alert) error {
	for _, a := range alerts {
		payload, err := encode(a)
		if err != nil {
			return err
		}
		_, err = r.pool.Exec(ctx, `
			INSERT INTO risk.alerts (id, portfolio_id, risk_type, status, created_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload`,
			a.ID, a.PortfolioID, a.RiskType, string(a.Status), a.CreatedAt, payload)
		if err != nil {
			return fmt.Errorf("failed to save alert %s: %w", a.ID, err)
		}
	}
	return nil
}

func (r *AlertRepository) FindByID(ctx context.Context, id string) (monitor.Alert, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM risk.alerts WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		return monitor.Alert{}, notFound(err, monitor.ErrAlertNotFound, id)
	}
	var a monitor.Alert
	if err := json.Unmarshal(payload, &a); err != nil {
		return monitor.Alert{}, fmt.Errorf("failed to decode alert: %w", err)
	}
	return a, nil
}

// FindOpen returns unresolved alerts of a portfolio, oldest first
func (r *AlertRepository) FindOpen(ctx context.Context, portfolioID int64) ([]monitor.Alert, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload FROM risk.alerts
		WHERE portfolio_id = $1 AND status <> $2
		ORDER BY created_at, id`, portfolioID, string(monitor.AlertResolved))
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []monitor.Alert
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var a monitor.Alert
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
