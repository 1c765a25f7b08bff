package risk

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// ZScoreMode selects how a confidence level maps to a z-score
type ZScoreMode string

const (
	// ZScoreTable is the three-breakpoint lookup (2.33 / 1.65 / 1.28, default 1.65)
	ZScoreTable ZScoreMode = "table"
	// ZScoreContinuous is the exact inverse standard normal CDF
	ZScoreContinuous ZScoreMode = "continuous"
)

// ParseZScoreMode accepts "table" or "continuous"; empty means table
func ParseZScoreMode(s string) (ZScoreMode, error) {
	switch ZScoreMode(s) {
	case "", ZScoreTable:
		return ZScoreTable, nil
	case ZScoreContinuous:
		return ZScoreContinuous, nil
	}
	return "", fmt.Errorf("%w: unknown z-score mode %q", ErrInvalidInput, s)
}

// ZScore returns the one-sided z-score for confidence
func ZScore(confidence float64, mode ZScoreMode) float64 {
	if mode == ZScoreContinuous && confidence > 0 && confidence < 1 {
		return distuv.UnitNormal.Quantile(confidence)
	}
	return tableZScore(confidence)
}

func tableZScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.33
	case confidence >= 0.95:
		return 1.65
	case confidence >= 0.90:
		return 1.28
	}
	return 1.65
}
