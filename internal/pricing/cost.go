// cost.go - fixed-point cost arithmetic.
//
// DESIGN: Costs are computed with decimal arithmetic and stored as integer
// nano-dollars (the smallest billable unit). float64 only appears at the
// presentation edge, so repeated identical inputs always produce identical
// ledger values on every platform.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cost is a USD amount in nano-dollars.
type Cost int64

// Zero is the unpriced sentinel recorded for unknown models.
const Zero Cost = 0

var (
	million = decimal.NewFromInt(1_000_000)
	nano    = decimal.NewFromInt(1_000_000_000)

	// Anthropic prompt-cache multipliers relative to the input rate.
	cacheWriteFactor = decimal.NewFromFloat(1.25)
	cacheReadFactor  = decimal.NewFromFloat(0.1)
)

// USD returns the cost as a float for JSON presentation.
func (c Cost) USD() float64 {
	f, _ := decimal.NewFromInt(int64(c)).Div(nano).Float64()
	return f
}

// Nanos returns the raw nano-dollar amount.
func (c Cost) Nanos() int64 { return int64(c) }

// String formats the cost as a dollar amount.
func (c Cost) String() string {
	return fmt.Sprintf("$%s", decimal.NewFromInt(int64(c)).Div(nano).StringFixed(6))
}

// Cost computes input_tokens*input_price/1M + output_tokens*output_price/1M,
// rounded half-up to the nearest nano-dollar. Monotonically non-decreasing
// in both token counts.
func (m CostModel) Cost(inputTokens, outputTokens int64) Cost {
	in := tokenCost(inputTokens, m.InputPerMTok)
	out := tokenCost(outputTokens, m.OutputPerMTok)
	return roundNanos(in.Add(out))
}

// CostWithPromptCache prices a call whose input was partially served from the
// provider's prompt cache: non-cached input at full rate, cache writes at
// 1.25x, cache reads at 0.1x of the input rate.
func (m CostModel) CostWithPromptCache(inputTokens, outputTokens, cacheWriteTokens, cacheReadTokens int64) Cost {
	total := tokenCost(inputTokens, m.InputPerMTok).
		Add(tokenCost(outputTokens, m.OutputPerMTok)).
		Add(tokenCost(cacheWriteTokens, m.InputPerMTok.Mul(cacheWriteFactor))).
		Add(tokenCost(cacheReadTokens, m.InputPerMTok.Mul(cacheReadFactor)))
	return roundNanos(total)
}

// tokenCost returns tokens * perMTok / 1M in dollars (unrounded).
func tokenCost(tokens int64, perMTok decimal.Decimal) decimal.Decimal {
	if tokens <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(tokens).Mul(perMTok).Div(million)
}

// roundNanos converts a dollar amount to nano-dollars, rounding half-up.
func roundNanos(dollars decimal.Decimal) Cost {
	// decimal.Round rounds half away from zero; costs are never negative
	// so this is half-up.
	return Cost(dollars.Mul(nano).Round(0).IntPart())
}
