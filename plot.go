// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const plotFilenameDefault = "top_markers.png"

// PlotTopMarkers renders the k best markers of rk as three
// side-by-side horizontal bar charts, one per scoring method, and
// writes a PNG to fnm.
func PlotTopMarkers(fnm string, rk *Ranking, k int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plot: %v", r)
		}
	}()
	if k <= 0 || k > len(rk.Scores) {
		k = len(rk.Scores)
	}
	if k == 0 {
		return fmt.Errorf("plot: no ranked markers")
	}
	top := rk.Scores[:k]
	// Best marker at the top of each panel.
	names := make([]string, k)
	for i, fs := range top {
		names[k-1-i] = fs.MarkerID
	}
	methods := []struct {
		method, title string
	}{
		{MethodANOVA, "ANOVA F"},
		{MethodForest, "Random forest importance"},
		{MethodLogReg, "|logistic regression coef|"},
	}
	plots := [][]*plot.Plot{make([]*plot.Plot, len(methods))}
	for col, m := range methods {
		values := make(plotter.Values, k)
		for i, fs := range top {
			values[k-1-i] = fs.score(m.method)
		}
		finiteBars(values)
		p := plot.New()
		p.Title.Text = m.title
		bars, err := plotter.NewBarChart(values, vg.Points(10))
		if err != nil {
			return err
		}
		bars.Horizontal = true
		p.Add(bars)
		p.NominalY(names...)
		plots[0][col] = p
	}

	img := vgimg.New(vg.Points(900), vg.Points(float64(120+18*k)))
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 1, Cols: len(methods), PadX: vg.Millimeter, PadY: vg.Millimeter}
	canvases := plot.Align(plots, tiles, dc)
	for col, p := range plots[0] {
		p.Draw(canvases[0][col])
	}
	return writeFileAtomic(fnm, nil, func(w io.Writer) error {
		_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
		return err
	})
}

// finiteBars replaces values a bar chart can't draw: NaN becomes 0
// and +Inf becomes the largest finite value.
func finiteBars(values plotter.Values) {
	max := 0.0
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v > max {
			max = v
		}
	}
	if max == 0 {
		max = 1
	}
	for i, v := range values {
		switch {
		case math.IsNaN(v), math.IsInf(v, -1):
			values[i] = 0
		case math.IsInf(v, 1):
			values[i] = max
		}
	}
}
