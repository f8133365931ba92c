// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"math"

	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type consensusSuite struct{}

var _ = check.Suite(&consensusSuite{})

func (s *consensusSuite) TestFractionalRanks(c *check.C) {
	c.Check(fractionalRanks([]float64{3, 1, 2}), check.DeepEquals, []float64{1, 3, 2})
	c.Check(fractionalRanks([]float64{5, 5, 1, 5}), check.DeepEquals, []float64{2, 2, 4, 2})
	c.Check(fractionalRanks([]float64{math.NaN(), 1, math.Inf(1), math.NaN()}), check.DeepEquals, []float64{3.5, 2, 1, 3.5})
	c.Check(fractionalRanks(nil), check.HasLen, 0)
}

func (s *consensusSuite) TestRankMean(c *check.C) {
	got := rankMean{}.Aggregate([][]float64{
		{10, 20, 30},
		{0.3, 0.2, 0.1},
		{1, 3, 2},
	})
	// ranks: {3,2,1}, {1,2,3}, {3,1,2}
	want := []float64{7.0 / 3, 5.0 / 3, 2}
	c.Assert(got, check.HasLen, len(want))
	for i := range want {
		c.Check(math.Abs(got[i]-want[i]) < 1e-12, check.Equals, true, check.Commentf("%d: %v", i, got[i]))
	}
}

func (s *consensusSuite) TestScoreMinMax(c *check.C) {
	got := scoreMinMax{}.Aggregate([][]float64{
		{0, 5, 10},
		{1, 1, 1},
	})
	c.Check(got, check.DeepEquals, []float64{1, 0.75, 0.5})
	c.Check(minMax([]float64{math.Inf(1), 2, math.NaN(), 4}), check.DeepEquals, []float64{1, 0, 0, 1})
}

func (s *consensusSuite) TestNewAggregator(c *check.C) {
	agg, err := newAggregator(ConsensusScoreMinMax)
	c.Check(err, check.IsNil)
	c.Check(agg, check.FitsTypeOf, scoreMinMax{})
	_, err = newAggregator("borda")
	c.Check(err, check.ErrorMatches, `unknown consensus rule "borda"`)
}

// If a marker's score improves under every method, its consensus
// value must not get worse.
func (s *consensusSuite) TestRankMeanMonotonic(c *check.C) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.Intn(8)
		scores := make([][]float64, 3)
		for m := range scores {
			scores[m] = make([]float64, n)
			for i := range scores[m] {
				scores[m][i] = float64(rng.Intn(5))
			}
		}
		target := rng.Intn(n)
		before := rankMean{}.Aggregate(scores)
		for m := range scores {
			scores[m][target] += 1 + float64(rng.Intn(3))
		}
		after := rankMean{}.Aggregate(scores)
		c.Check(after[target] <= before[target], check.Equals, true, check.Commentf("trial %d: %v -> %v", trial, before[target], after[target]))
		// and its position among the other markers can't drop
		worseBefore, worseAfter := 0, 0
		for i := range before {
			if i != target && before[i] < before[target] {
				worseBefore++
			}
			if i != target && after[i] < after[target] {
				worseAfter++
			}
		}
		c.Check(worseAfter <= worseBefore, check.Equals, true, check.Commentf("trial %d", trial))
	}
}
