package workflow

import (
	"github.com/shopspring/decimal"
)

// WeightedAverageCost blends a priced receipt into a product's average cost:
//
//	(prevGrams*prevAvg + incomingGrams*incomingPrice) / (prevGrams + incomingGrams)
//
// A zero combined quantity yields zero. A receipt without a positive declared
// price is a quantity-only adjustment and leaves the previous average intact.
func WeightedAverageCost(previousTotalGrams, previousAverageCost, incomingGrams, incomingPricePerGram decimal.Decimal) decimal.Decimal {
	if !incomingPricePerGram.IsPositive() {
		return previousAverageCost
	}
	denominator := previousTotalGrams.Add(incomingGrams)
	if denominator.IsZero() {
		return decimal.Zero
	}
	previousValue := previousTotalGrams.Mul(previousAverageCost)
	incomingValue := incomingGrams.Mul(incomingPricePerGram)
	return previousValue.Add(incomingValue).Div(denominator)
}
