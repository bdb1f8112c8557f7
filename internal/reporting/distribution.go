package reporting

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Distribution summarizes ROI across ranked wallets.
type Distribution struct {
	Mean   string
	Median string
	P10    string
	P90    string
}

func roiDistribution(rois []decimal.Decimal) Distribution {
	if len(rois) == 0 {
		zero := decimal.Zero.StringFixed(roiPlaces)
		return Distribution{Mean: zero, Median: zero, P10: zero, P90: zero}
	}

	sorted := make([]decimal.Decimal, len(rois))
	copy(sorted, rois)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	return Distribution{
		Mean:   decimal.Avg(sorted[0], sorted[1:]...).StringFixed(roiPlaces),
		Median: percentile(sorted, 0.5).StringFixed(roiPlaces),
		P10:    percentile(sorted, 0.1).StringFixed(roiPlaces),
		P90:    percentile(sorted, 0.9).StringFixed(roiPlaces),
	}
}

// percentile uses linear interpolation. sorted must be ascending and non-empty.
// p is a fraction (0.10 = 10th percentile).
func percentile(sorted []decimal.Decimal, p float64) decimal.Decimal {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	idx := decimal.NewFromFloat(p).Mul(decimal.NewFromInt(int64(n - 1)))
	lower := int(idx.IntPart())
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := idx.Sub(decimal.NewFromInt(int64(lower)))
	return sorted[lower].Add(frac.Mul(sorted[lower+1].Sub(sorted[lower])))
}
