// Package store persists scenarios, stress results, simulations and alerts as
// JSONB documents keyed by id. Only the columns used for filtering are broken out.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no row matches the requested id
var ErrNotFound = errors.New("record not found")

func encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// notFound maps pgx.ErrNoRows to target wrapped with the id
func notFound(err error, target error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", target, id)
	}
	return err
}
