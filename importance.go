// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"github.com/rainstream/rainstream/forest"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// forestScorer scores markers by the impurity-based importance of a
// random forest fitted on all markers.
type forestScorer struct{}

func (forestScorer) Method() string { return MethodForest }

func (forestScorer) Score(ds *Dataset, cfg Config) (MethodScores, error) {
	rows, _ := ds.X.Dims()
	x := make([][]float64, rows)
	for i := range x {
		x[i] = mat.Row(nil, i, ds.X)
	}
	f, err := forest.Fit(x, ds.Y, len(ds.Classes), forest.Config{
		Trees:    cfg.Trees,
		MaxDepth: cfg.MaxDepth,
		Seed:     uint64(cfg.Seed),
		Threads:  cfg.threads(),
	})
	if err != nil {
		return MethodScores{}, err
	}
	correct := 0
	for i, row := range x {
		if f.Predict(row) == ds.Y[i] {
			correct++
		}
	}
	log.Debugf("%s: %d trees, training accuracy %d/%d", MethodForest, f.Trees(), correct, rows)
	return MethodScores{Values: f.Importances()}, nil
}
