// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// anovaScorer computes the one-way ANOVA F statistic of each marker
// across label classes.
type anovaScorer struct{}

func (anovaScorer) Method() string { return MethodANOVA }

func (anovaScorer) Score(ds *Dataset, cfg Config) (MethodScores, error) {
	_, cols := ds.X.Dims()
	res := MethodScores{
		Values:  make([]float64, cols),
		PValues: make([]float64, cols),
	}
	for j := 0; j < cols; j++ {
		res.Values[j], res.PValues[j] = fOneway(mat.Col(nil, j, ds.X), ds.Y, len(ds.Classes))
	}
	return res, nil
}

// fOneway returns the F statistic and p-value for x grouped by
// class. A marker with no within-group variance gets F=+Inf (p=0) if
// group means differ, and F=0 (p=1) if they don't. With no residual
// degrees of freedom the p-value is NaN.
func fOneway(x []float64, class []int, nClasses int) (f, p float64) {
	n := make([]float64, nClasses)
	sum := make([]float64, nClasses)
	grand := 0.0
	for i, v := range x {
		n[class[i]]++
		sum[class[i]] += v
		grand += v
	}
	grand /= float64(len(x))
	groups := 0
	ssb := 0.0
	for c := range n {
		if n[c] == 0 {
			continue
		}
		groups++
		d := sum[c]/n[c] - grand
		ssb += n[c] * d * d
	}
	ssw := 0.0
	for i, v := range x {
		d := v - sum[class[i]]/n[class[i]]
		ssw += d * d
	}
	dfb := float64(groups - 1)
	dfw := float64(len(x) - groups)
	if dfb <= 0 {
		return 0, 1
	}
	if ssw == 0 {
		if ssb == 0 {
			return 0, 1
		}
		return math.Inf(1), 0
	}
	if dfw <= 0 {
		return 0, math.NaN()
	}
	f = (ssb / dfb) / (ssw / dfw)
	p = distuv.F{D1: dfb, D2: dfw}.Survival(f)
	return f, p
}
