package outcome

import (
	"math"
	"sort"
)

// Welford accumulates a running mean and sum of squared deviations.
type Welford struct {
	Count int
	Mean  float64
	M2    float64
}

func (w *Welford) Update(x float64) {
	w.Count++
	delta := x - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := x - w.Mean
	w.M2 += delta * delta2
}

// PopulationStd divides by n. Zero for fewer than two values.
func (w *Welford) PopulationStd() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}

// Percentile returns the p-th percentile (0..100) of sorted values using linear
// interpolation between closest ranks. sorted must be non-empty and ascending.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// Stats summarizes a sample.
type Stats struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Std    float64 `json:"std" yaml:"std"`
	Median float64 `json:"median" yaml:"median"`
	P5     float64 `json:"p5" yaml:"p5"`
	P95    float64 `json:"p95" yaml:"p95"`
}

// Summarize computes count, mean, population standard deviation, median and the
// 5th/95th percentiles. An empty sample yields the zero Stats.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	var w Welford
	for _, v := range values {
		w.Update(v)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Stats{
		Count:  w.Count,
		Mean:   w.Mean,
		Std:    w.PopulationStd(),
		Median: Percentile(sorted, 50),
		P5:     Percentile(sorted, 5),
		P95:    Percentile(sorted, 95),
	}
}
