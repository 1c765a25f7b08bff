package risk_test

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-risk/internal/risk"
)

func ExampleCalculator_HistoricalRisk() {
	calc := risk.NewCalculator(risk.DefaultOptions(), nil)

	returns := []decimal.Decimal{
		decimal.RequireFromString("-0.05"),
		decimal.RequireFromString("-0.03"),
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("0.02"),
		decimal.RequireFromString("0.10"),
	}

	res, err := calc.HistoricalRisk(returns, decimal.NewFromInt(10000), 0.95)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("VaR:", res.VaR.StringFixed(2))
	fmt.Println("CVaR:", res.CVaR.StringFixed(2))
	// Output:
	// VaR: 500.00
	// CVaR: 500.00
}

func ExampleZScore() {
	fmt.Println(risk.ZScore(0.99, risk.ZScoreTable))
	fmt.Println(risk.ZScore(0.97, risk.ZScoreTable))
	// Output:
	// 2.33
	// 1.65
}
