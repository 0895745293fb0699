// Package stats provides the statistical kernel used by trend analysis:
// p95 outlier filtering, linear regression, coefficient of variation, and
// lagged Pearson correlation. All routines are pure and deterministic.
package stats

import (
	"math"
	"sort"
)

// minPointsForFiltering is the minimum sample size for p95 filtering.
// Below this, filtering would remove genuine signal.
const minPointsForFiltering = 5

// Clean strips NaN and Inf values, returning the finite values and the
// number removed. The input slice is not modified.
func Clean(values []float64) ([]float64, int) {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	return valid, len(values) - len(valid)
}

// Percentile computes the p-th percentile (0-100) using linear interpolation
// between closest ranks. Returns 0 for empty input.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// FilterOutliersP95 removes values above the 95th percentile.
// With fewer than 5 values the input is returned unchanged: too little data
// for the threshold to be meaningful.
func FilterOutliersP95(values []float64) (kept, outliers []float64) {
	if len(values) < minPointsForFiltering {
		return values, nil
	}
	threshold := Percentile(values, 95)
	kept = make([]float64, 0, len(values))
	for _, v := range values {
		if v <= threshold {
			kept = append(kept, v)
		} else {
			outliers = append(outliers, v)
		}
	}
	return kept, outliers
}

// LinearTrend fits ordinary least squares over (index, value) pairs and
// returns the slope and the coefficient of determination. When the series
// has no variance (SS_tot = 0) both slope and r² are 0, never NaN.
func LinearTrend(values []float64) (slope, r2 float64) {
	n := len(values)
	if n < 2 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	mean := sumY / fn
	var ssRes, ssTot float64
	for i, y := range values {
		pred := slope*float64(i) + intercept
		ssRes += (y - pred) * (y - pred)
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot == 0 {
		return 0, 0
	}
	return slope, 1 - ssRes/ssTot
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(len(values)))
}

// CoefVariation returns stddev/|mean|. A flat all-zero series yields 0;
// a zero mean with non-zero spread yields +Inf.
func CoefVariation(values []float64) float64 {
	mean := Mean(values)
	std := StdDev(values)
	if mean == 0 {
		if std == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// LagCorrelation is the result of a lagged Pearson scan.
type LagCorrelation struct {
	R   float64 // Pearson correlation at the best lag
	P   float64 // two-sided p-value (Fisher z approximation)
	Lag int     // lag of b relative to a, in samples
	N   int     // overlapping sample count at the best lag
}

// PearsonWithLag scans lags in [-maxLag, +maxLag] and returns the correlation
// with the largest |r|. Ties prefer the smallest |lag|, then the positive lag.
// Non-finite values must be stripped by the caller (see Clean).
func PearsonWithLag(a, b []float64, maxLag int) LagCorrelation {
	best := LagCorrelation{}
	found := false

	for lag := -maxLag; lag <= maxLag; lag++ {
		x, y := alignAtLag(a, b, lag)
		if len(x) < 3 {
			continue
		}
		r := pearson(x, y)
		if math.IsNaN(r) {
			continue
		}
		if !found || better(r, lag, best) {
			best = LagCorrelation{R: r, P: pValue(r, len(x)), Lag: lag, N: len(x)}
			found = true
		}
	}
	return best
}

func better(r float64, lag int, best LagCorrelation) bool {
	ar, br := math.Abs(r), math.Abs(best.R)
	if ar != br {
		return ar > br
	}
	al, bl := abs(lag), abs(best.Lag)
	if al != bl {
		return al < bl
	}
	return lag > best.Lag
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// alignAtLag pairs a[i] with b[i+lag] for every index where both exist.
func alignAtLag(a, b []float64, lag int) (x, y []float64) {
	for i := range a {
		j := i + lag
		if j < 0 || j >= len(b) {
			continue
		}
		x = append(x, a[i])
		y = append(y, b[j])
	}
	return x, y
}

func pearson(x, y []float64) float64 {
	mx, my := Mean(x), Mean(y)
	var cov, vx, vy float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}

// pValue approximates the two-sided significance of r via the Fisher
// z-transformation, which is adequate for n >= 4.
func pValue(r float64, n int) float64 {
	if n < 4 {
		return 1
	}
	if r >= 1 || r <= -1 {
		return 0
	}
	z := 0.5 * math.Log((1+r)/(1-r))
	se := 1 / math.Sqrt(float64(n-3))
	return math.Erfc(math.Abs(z) / se / math.Sqrt2)
}
