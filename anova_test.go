// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"math"

	"gopkg.in/check.v1"
	"gonum.org/v1/gonum/mat"
)

type anovaSuite struct{}

var _ = check.Suite(&anovaSuite{})

func (s *anovaSuite) TestFOneway(c *check.C) {
	f, p := fOneway([]float64{1, 2, 3, 4, 5, 6}, []int{0, 0, 0, 1, 1, 1}, 2)
	c.Check(f, check.Equals, 13.5)
	c.Check(math.Abs(p-0.021311641128756723) < 1e-6, check.Equals, true, check.Commentf("p = %v", p))

	// three groups, same data permuted: F is unchanged
	f1, _ := fOneway([]float64{1, 4, 2, 8, 9, 7}, []int{0, 1, 0, 2, 2, 2}, 3)
	f2, _ := fOneway([]float64{9, 7, 1, 8, 2, 4}, []int{2, 2, 0, 2, 0, 1}, 3)
	c.Check(math.Abs(f1-f2) < 1e-9, check.Equals, true, check.Commentf("%v != %v", f1, f2))
}

func (s *anovaSuite) TestDegenerate(c *check.C) {
	f, p := fOneway([]float64{1, 1, 2, 2}, []int{0, 0, 1, 1}, 2)
	c.Check(math.IsInf(f, 1), check.Equals, true)
	c.Check(p, check.Equals, 0.0)

	f, p = fOneway([]float64{3, 3, 3, 3}, []int{0, 0, 1, 1}, 2)
	c.Check(f, check.Equals, 0.0)
	c.Check(p, check.Equals, 1.0)

	// only one class actually present
	f, p = fOneway([]float64{1, 2, 3}, []int{1, 1, 1}, 2)
	c.Check(f, check.Equals, 0.0)
	c.Check(p, check.Equals, 1.0)
}

func (s *anovaSuite) TestScorer(c *check.C) {
	ds := &Dataset{
		Markers: []string{"informative", "noise"},
		X: mat.NewDense(6, 2, []float64{
			1, 5,
			2, 3,
			3, 4,
			4, 4,
			5, 5,
			6, 3,
		}),
		Y:       []int{0, 0, 0, 1, 1, 1},
		Classes: []string{"A", "B"},
	}
	res, err := anovaScorer{}.Score(ds, DefaultConfig())
	c.Assert(err, check.IsNil)
	c.Check(res.Values[0], check.Equals, 13.5)
	c.Check(res.Values[1], check.Equals, 0.0)
	c.Check(res.PValues, check.HasLen, 2)
	c.Check(math.Abs(res.PValues[1]-1) < 1e-12, check.Equals, true)
}
