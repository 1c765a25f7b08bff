package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/scenario"
)

// ScenarioStore is the persisted scenario catalog
type ScenarioStore interface {
	Save(ctx context.Context, s scenario.RiskScenario) error
	FindByID(ctx context.Context, id string) (scenario.RiskScenario, error)
	FindByName(ctx context.Context, name string) (scenario.RiskScenario, error)
	FindByType(ctx context.Context, t scenario.Type) ([]scenario.RiskScenario, error)
	FindBySeverity(ctx context.Context, sev scenario.Severity) ([]scenario.RiskScenario, error)
	FindActive(ctx context.Context, now time.Time) ([]scenario.RiskScenario, error)
	FindByProbabilityRange(ctx context.Context, min, max decimal.Decimal) ([]scenario.RiskScenario, error)
	FindAll(ctx context.Context) ([]scenario.RiskScenario, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
	CountByType(ctx context.Context) (map[scenario.Type]int64, error)
}

// ScenarioRepository implements ScenarioStore on risk.scenarios
// SSOT: scenario persistence happens only here
type ScenarioRepository struct {
	pool *pgxpool.Pool
}

// NewScenarioRepository creates a new scenario repository
func NewScenarioRepository(pool *pgxpool.Pool) *ScenarioRepository {
	return &ScenarioRepository{pool: pool}
}

// Save inserts or replaces a scenario
func (r *ScenarioRepository) Save(ctx context.Context, s scenario.RiskScenario) error {
	if err := s.Validate(); err != nil {
		return err
	}
	payload, err := encode(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO risk.scenarios (id, name, type, severity, probability, valid_until, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			severity = EXCLUDED.severity,
			probability = EXCLUDED.probability,
			valid_until = EXCLUDED.valid_until,
			payload = EXCLUDED.payload,
			updated_at = now()
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID, s.Name, string(s.Type), string(s.Severity),
		s.Probability.InexactFloat64(), s.ValidUntil, payload)
	if err != nil {
		return fmt.Errorf("failed to save scenario %s: %w", s.ID, err)
	}
	return nil
}

// FindByID returns scenario.ErrNotFound for unknown ids
func (r *ScenarioRepository) FindByID(ctx context.Context, id string) (scenario.RiskScenario, error) {
	return r.findOne(ctx, `SELECT payload FROM risk.scenarios WHERE id = $1`, id)
}

// FindByName returns scenario.ErrNotFound for unknown names
func (r *ScenarioRepository) FindByName(ctx context.Context, name string) (scenario.RiskScenario, error) {
	return r.findOne(ctx, `SELECT payload FROM risk.scenarios WHERE name = $1 ORDER BY id LIMIT 1`, name)
}

func (r *ScenarioRepository) FindByType(ctx context.Context, t scenario.Type) ([]scenario.RiskScenario, error) {
	return r.findMany(ctx, `SELECT payload FROM risk.scenarios WHERE type = $1 ORDER BY id`, string(t))
}

func (r *ScenarioRepository) FindBySeverity(ctx context.Context, sev scenario.Severity) ([]scenario.RiskScenario, error) {
	return r.findMany(ctx, `SELECT payload FROM risk.scenarios WHERE severity = $1 ORDER BY id`, string(sev))
}

// FindActive returns scenarios without an expiry or expiring after now
func (r *ScenarioRepository) FindActive(ctx context.Context, now time.Time) ([]scenario.RiskScenario, error) {
	return r.findMany(ctx, `
		SELECT payload FROM risk.scenarios
		WHERE valid_until IS NULL OR valid_until > $1
		ORDER BY id`, now)
}

// FindByProbabilityRange is inclusive on both ends
func (r *ScenarioRepository) FindByProbabilityRange(ctx context.Context, min, max decimal.Decimal) ([]scenario.RiskScenario, error) {
	return r.findMany(ctx, `
		SELECT payload FROM risk.scenarios
		WHERE probability BETWEEN $1 AND $2
		ORDER BY probability DESC, id`, min.InexactFloat64(), max.InexactFloat64())
}

func (r *ScenarioRepository) FindAll(ctx context.Context) ([]scenario.RiskScenario, error) {
	return r.findMany(ctx, `SELECT payload FROM risk.scenarios ORDER BY id`)
}

// Delete returns scenario.ErrNotFound when nothing was deleted
func (r *ScenarioRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM risk.scenarios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scenario %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", scenario.ErrNotFound, id)
	}
	return nil
}

// DeleteExpired removes scenarios whose validity ended at or before now
func (r *ScenarioRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM risk.scenarios WHERE valid_until IS NOT NULL AND valid_until <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired scenarios: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ScenarioRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM risk.scenarios WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check scenario %s: %w", id, err)
	}
	return exists, nil
}

func (r *ScenarioRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM risk.scenarios`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scenarios: %w", err)
	}
	return n, nil
}

func (r *ScenarioRepository) CountByType(ctx context.Context) (map[scenario.Type]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT type, COUNT(*) FROM risk.scenarios GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count scenarios by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[scenario.Type]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[scenario.Type(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

func (r *ScenarioRepository) findOne(ctx context.Context, query string, arg interface{}) (scenario.RiskScenario, error) {
	var payload []byte
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&payload); err != nil {
		return scenario.RiskScenario{}, notFound(err, scenario.ErrNotFound, fmt.Sprint(arg))
	}

	var s scenario.RiskScenario
	if err := json.Unmarshal(payload, &s); err != nil {
		return scenario.RiskScenario{}, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return s, nil
}

func (r *ScenarioRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]scenario.RiskScenario, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var out []scenario.RiskScenario
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var s scenario.RiskScenario
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("failed to decode scenario: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
