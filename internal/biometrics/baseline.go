package biometrics

import "math"

// Baseline is the rolling statistical context for one signal. A baseline is
// only Valid once it has seen enough samples to be meaningful.
type Baseline struct {
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stdDev"`
	Samples int     `json:"samples"`
	Valid   bool    `json:"valid"`
}

// ComputeBaseline derives mean and population standard deviation from a
// window of samples. Fewer than minSamples yields an invalid baseline.
func ComputeBaseline(values []float64, minSamples int) Baseline {
	b := Baseline{Samples: len(values)}
	if len(values) == 0 {
		return b
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	b.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - b.Mean
		sq += d * d
	}
	b.StdDev = math.Sqrt(sq / float64(len(values)))
	b.Valid = len(values) >= minSamples
	return b
}

// ZScore places a value relative to the baseline in standard deviations.
// A flat baseline (zero deviation) pins every value to zero rather than
// producing infinities.
func (b Baseline) ZScore(value float64) float64 {
	if !b.Valid || b.StdDev == 0 {
		return 0
	}
	return (value - b.Mean) / b.StdDev
}

// PercentOfMean reports the value as a ratio of the baseline mean, or 1 when
// the baseline cannot support a comparison.
func (b Baseline) PercentOfMean(value float64) float64 {
	if !b.Valid || b.Mean == 0 {
		return 1
	}
	return value / b.Mean
}
