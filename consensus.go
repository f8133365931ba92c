// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// An Aggregator combines per-method scores (scores[method][marker],
// higher is better) into one consensus value per marker, where lower
// is better.
type Aggregator interface {
	Aggregate(scores [][]float64) []float64
}

func newAggregator(rule string) (Aggregator, error) {
	switch rule {
	case ConsensusRankMean, "":
		return rankMean{}, nil
	case ConsensusScoreMinMax:
		return scoreMinMax{}, nil
	default:
		return nil, fmt.Errorf("unknown consensus rule %q", rule)
	}
}

// rankMean averages each marker's rank positions across methods.
// Raw scores are never compared across methods.
type rankMean struct{}

func (rankMean) Aggregate(scores [][]float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	out := make([]float64, len(scores[0]))
	for _, s := range scores {
		floats.Add(out, fractionalRanks(s))
	}
	floats.Scale(1/float64(len(scores)), out)
	return out
}

// scoreMinMax rescales each method's scores to [0,1], averages them,
// and returns 1 minus the average.
type scoreMinMax struct{}

func (scoreMinMax) Aggregate(scores [][]float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	sum := make([]float64, len(scores[0]))
	for _, s := range scores {
		floats.Add(sum, minMax(s))
	}
	out := make([]float64, len(sum))
	for i, v := range sum {
		out[i] = 1 - v/float64(len(scores))
	}
	return out
}

// minMax maps finite values linearly onto [0,1]. +Inf maps to 1,
// NaN and -Inf to 0. A constant column maps to all zeros.
func minMax(s []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range s {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	out := make([]float64, len(s))
	for i, v := range s {
		switch {
		case math.IsInf(v, 1):
			out[i] = 1
		case math.IsNaN(v) || math.IsInf(v, -1) || hi <= lo:
			out[i] = 0
		default:
			out[i] = (v - lo) / (hi - lo)
		}
	}
	return out
}

// fractionalRanks returns 1-based rank positions for s in descending
// order. NaN sorts last. Tied values share the mean of the positions
// they span.
func fractionalRanks(s []float64) []float64 {
	order := make([]int, len(s))
	for i := range order {
		order[i] = i
	}
	less := func(a, b float64) bool {
		if math.IsNaN(a) {
			return false
		}
		return math.IsNaN(b) || a > b
	}
	sort.SliceStable(order, func(i, j int) bool { return less(s[order[i]], s[order[j]]) })
	ranks := make([]float64, len(s))
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && !less(s[order[start]], s[order[end]]) {
			end++
		}
		// positions start+1 .. end, inclusive
		avg := float64(start+1+end) / 2
		for _, i := range order[start:end] {
			ranks[i] = avg
		}
		start = end
	}
	return ranks
}
