// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package forest implements a random forest classifier with
// mean-decrease-in-impurity feature importances.
//
// Results depend only on the input and Config.Seed: each tree draws
// its own seed from a master generator before any tree is grown, and
// per-tree importances are combined in tree order, so the number of
// concurrent workers does not change the output.
package forest

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

type Config struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	// Features tried per split; 0 means floor(sqrt(features)).
	MaxFeatures int
	Seed        uint64
	Threads     int
}

// Forest is a fitted ensemble.
type Forest struct {
	trees       []*Tree
	importances []float64
	nClasses    int
}

// Fit grows cfg.Trees trees on bootstrap samples of x (one row per
// sample) with class labels y in [0, nClasses).
func Fit(x [][]float64, y []int, nClasses int, cfg Config) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("forest: no samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("forest: %d rows but %d labels", len(x), len(y))
	}
	nFeatures := len(x[0])
	if nFeatures == 0 {
		return nil, errors.New("forest: no features")
	}
	for i, row := range x {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("forest: row %d has %d features, want %d", i, len(row), nFeatures)
		}
		for _, v := range row {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("forest: row %d has a missing value", i)
			}
		}
		if y[i] < 0 || y[i] >= nClasses {
			return nil, fmt.Errorf("forest: row %d has class %d outside [0,%d)", i, y[i], nClasses)
		}
	}
	if cfg.Trees < 1 {
		cfg.Trees = 100
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = math.MaxInt32
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	mtry := cfg.MaxFeatures
	if mtry < 1 {
		mtry = int(math.Sqrt(float64(nFeatures)))
	}
	if mtry < 1 {
		mtry = 1
	} else if mtry > nFeatures {
		mtry = nFeatures
	}
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}

	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]uint64, cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	f := &Forest{
		trees:    make([]*Tree, cfg.Trees),
		nClasses: nClasses,
	}
	treeImportance := make([][]float64, cfg.Trees)
	var wg sync.WaitGroup
	sem := make(chan bool, threads)
	for i := range seeds {
		i := i
		wg.Add(1)
		sem <- true
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			f.trees[i], treeImportance[i] = growTree(x, y, nClasses, cfg, mtry, seeds[i])
		}()
	}
	wg.Wait()

	f.importances = make([]float64, nFeatures)
	grown := 0
	for i, imp := range treeImportance {
		if f.trees[i].Nodes() < 2 {
			continue
		}
		floats.Add(f.importances, imp)
		grown++
	}
	if total := floats.Sum(f.importances); grown > 0 && total > 0 {
		floats.Scale(1/total, f.importances)
	}
	return f, nil
}

func growTree(x [][]float64, y []int, nClasses int, cfg Config, mtry int, seed uint64) (*Tree, []float64) {
	g := &grower{
		x:         x,
		y:         y,
		nClasses:  nClasses,
		cfg:       cfg,
		mtry:      mtry,
		rng:       rand.New(rand.NewSource(seed)),
		tree:      &Tree{nClasses: nClasses},
		nFeatures: len(x[0]),
	}
	g.decrease = make([]float64, g.nFeatures)
	n := len(x)
	samples := make([]int, n)
	for i := range samples {
		samples[i] = g.rng.Intn(n)
	}
	g.grow(samples, 0)
	// Per-tree importances are normalized to sum to 1, as in the
	// usual mean-decrease-in-impurity definition.
	if total := floats.Sum(g.decrease); total > 0 {
		floats.Scale(1/total, g.decrease)
	}
	return g.tree, g.decrease
}

// Importances returns the normalized mean decrease in impurity per
// feature. The values sum to 1 unless no tree found a split, in which
// case they are all zero.
func (f *Forest) Importances() []float64 {
	return append([]float64(nil), f.importances...)
}

// Predict returns the majority vote of the trees.
func (f *Forest) Predict(row []float64) int {
	votes := make([]int, f.nClasses)
	for _, t := range f.trees {
		votes[t.Predict(row)]++
	}
	best := 0
	for c, v := range votes {
		if v > votes[best] {
			best = c
		}
	}
	return best
}

// Trees returns the number of fitted trees.
func (f *Forest) Trees() int {
	return len(f.trees)
}
