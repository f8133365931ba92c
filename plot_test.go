// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"bytes"
	"math"
	"os"

	"gopkg.in/check.v1"
	"gonum.org/v1/plot/plotter"
)

type plotSuite struct{}

var _ = check.Suite(&plotSuite{})

func (s *plotSuite) TestPlotTopMarkers(c *check.C) {
	rk := &Ranking{}
	for i, f := range []float64{math.Inf(1), 12, 3, math.NaN()} {
		rk.Scores = append(rk.Scores, FeatureScore{
			MarkerID: string(rune('a' + i)),
			Scores: map[string]float64{
				MethodANOVA:  f,
				MethodForest: 0.1 * float64(4-i),
				MethodLogReg: float64(i),
			},
			ConsensusRank: i + 1,
		})
	}
	fnm := c.MkDir() + "/top.png"
	c.Assert(PlotTopMarkers(fnm, rk, 3), check.IsNil)
	buf, err := os.ReadFile(fnm)
	c.Assert(err, check.IsNil)
	c.Check(bytes.HasPrefix(buf, []byte("\x89PNG")), check.Equals, true)

	c.Check(PlotTopMarkers(fnm, &Ranking{}, 3), check.ErrorMatches, `plot: no ranked markers`)
}

func (s *plotSuite) TestFiniteBars(c *check.C) {
	v := plotter.Values{math.Inf(1), 2, math.NaN(), 5, math.Inf(-1)}
	finiteBars(v)
	c.Check([]float64(v), check.DeepEquals, []float64{5, 2, 0, 5, 0})
}
