package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestWeightedAverageCost(t *testing.T) {
	cases := []struct {
		name          string
		prevGrams     string
		prevAvg       string
		incomingGrams string
		incomingPrice string
		want          string
	}{
		{"first priced receipt", "0", "0", "10", "2", "2"},
		{"blend", "10", "2", "10", "4", "3"},
		{"heavier existing stock", "30", "1", "10", "5", "2"},
		{"zero combined quantity", "0", "0", "0", "0", "0"},
		{"unpriced receipt keeps average", "10", "2.5", "10", "0", "2.5"},
		{"negative price keeps average", "10", "2.5", "10", "-1", "2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WeightedAverageCost(dec(tc.prevGrams), dec(tc.prevAvg), dec(tc.incomingGrams), dec(tc.incomingPrice))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestWeightedAverageCostSequentialEqualsCombined(t *testing.T) {
	// two receipts applied in sequence
	avg := WeightedAverageCost(dec("0"), dec("0"), dec("10"), dec("2"))
	avg = WeightedAverageCost(dec("10"), avg, dec("10"), dec("4"))

	// one combined receipt at the blended price
	combined := WeightedAverageCost(dec("0"), dec("0"), dec("20"), dec("3"))

	if !avg.Equal(combined) {
		t.Fatalf("sequential %s != combined %s", avg, combined)
	}
	if !avg.Equal(dec("3")) {
		t.Fatalf("avg = %s, want 3", avg)
	}
}
