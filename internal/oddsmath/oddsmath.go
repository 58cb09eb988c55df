// Package oddsmath is the shared decimal-exact math library behind every
// strategy: American-odds conversion, expected value, and consensus
// aggregation across sportsbooks. No float64 crosses this package's
// boundary — only shopspring/decimal.
package oddsmath

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrZeroDenominator guards the EV formula against a zero-cent market.
	ErrZeroDenominator = errors.New("oddsmath: cost must be at least 1 cent")

	hundred   = decimal.NewFromInt(100)
	minCents  = decimal.NewFromInt(1)
)

// ProbabilityFromAmerican converts American odds to an implied probability
// in [0,1]. Negative odds are favorites; positive odds are underdogs.
func ProbabilityFromAmerican(american int) decimal.Decimal {
	a := decimal.NewFromInt(int64(american))
	if american < 0 {
		return a.Neg().Div(a.Neg().Add(hundred))
	}
	return hundred.Div(a.Add(hundred))
}

// AmericanFromProbability converts a probability in (0,1) back to a
// canonical American odds integer. Canonical form: favorites (p>=0.5) are
// negative, underdogs (p<0.5) are positive; p=0.5 is represented as -100.
func AmericanFromProbability(p decimal.Decimal) int {
	if p.LessThanOrEqual(decimal.Zero) {
		p = decimal.NewFromFloat(0.0001)
	}
	if p.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		p = decimal.NewFromFloat(0.9999)
	}
	half := decimal.NewFromFloat(0.5)
	if p.GreaterThanOrEqual(half) {
		odds := p.Div(p.Neg().Add(decimal.NewFromInt(1))).Mul(hundred).Neg()
		return int(odds.Round(0).IntPart())
	}
	odds := p.Neg().Add(decimal.NewFromInt(1)).Div(p).Mul(hundred)
	return int(odds.Round(0).IntPart())
}

// ExpectedValuePercent computes EV% = ((trueProb - cost) / cost) * 100,
// where cost is a price in cents on [0,100]. A zero-cent cost is clamped
// to a 1-cent floor rather than dividing by
// zero.
func ExpectedValuePercent(trueProb decimal.Decimal, costCents decimal.Decimal) decimal.Decimal {
	if costCents.LessThan(minCents) {
		costCents = minCents
	}
	cost := costCents.Div(hundred)
	return trueProb.Sub(cost).Div(cost).Mul(hundred)
}

// ConsensusMedian returns the median of a set of per-vendor probabilities.
// SharpLine uses this as its consensus estimator.
func ConsensusMedian(probs []decimal.Decimal) decimal.Decimal {
	if len(probs) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(probs))
	copy(sorted, probs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

// RemoveVig returns a vig-free pair of probabilities given the raw two-sided
// implied probabilities (which sum to more than 1 because of the house
// edge). This is an alternative consensus aggregation, a supplement to the
// raw-median approach; strategies default to ConsensusMedian and may opt
// into this when both sides of a market are available.
func RemoveVig(pYes, pNo decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	sum := pYes.Add(pNo)
	if sum.LessThanOrEqual(decimal.Zero) {
		return pYes, pNo
	}
	return pYes.Div(sum), pNo.Div(sum)
}

// KellyFraction computes the full-Kelly bet fraction for a binary bet with
// true probability p and decimal cost (price in [0,1]) per contract paying
// 1 unit. f* = (p - cost) / (1 - cost), clamped to [0,1].
func KellyFraction(p, cost decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if cost.GreaterThanOrEqual(one) || cost.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	f := p.Sub(cost).Div(one.Sub(cost))
	if f.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if f.GreaterThan(one) {
		return one
	}
	return f
}
