// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package forest

import (
	"sort"

	"golang.org/x/exp/rand"
)

type node struct {
	feature   int // -1 for a leaf
	threshold float64
	left      int
	right     int
	counts    []float64
}

// Tree is a CART classification tree grown on Gini impurity.
type Tree struct {
	nodes    []node
	nClasses int
}

type grower struct {
	x         [][]float64
	y         []int
	nClasses  int
	cfg       Config
	mtry      int
	rng       *rand.Rand
	tree      *Tree
	decrease  []float64 // per-feature weighted impurity decrease
	nFeatures int
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / n
		sum += p * p
	}
	return 1 - sum
}

func (g *grower) classCounts(samples []int) []float64 {
	counts := make([]float64, g.nClasses)
	for _, s := range samples {
		counts[g.y[s]]++
	}
	return counts
}

// grow appends the subtree for samples and returns its node index.
func (g *grower) grow(samples []int, depth int) int {
	counts := g.classCounts(samples)
	idx := len(g.tree.nodes)
	g.tree.nodes = append(g.tree.nodes, node{feature: -1, counts: counts})
	n := float64(len(samples))
	impurity := gini(counts, n)
	if depth >= g.cfg.MaxDepth || len(samples) < g.cfg.MinSamplesSplit || impurity == 0 {
		return idx
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	order := make([]int, len(samples))
	left := make([]float64, g.nClasses)
	right := make([]float64, g.nClasses)
	// Visit features in random order; keep going past mtry only
	// while no usable split has been found.
	for visited, f := range g.rng.Perm(g.nFeatures) {
		if visited >= g.mtry && bestFeature >= 0 {
			break
		}
		copy(order, samples)
		sort.Slice(order, func(i, j int) bool { return g.x[order[i]][f] < g.x[order[j]][f] })
		for c := range left {
			left[c] = 0
			right[c] = counts[c]
		}
		for i := 0; i < len(order)-1; i++ {
			cls := g.y[order[i]]
			left[cls]++
			right[cls]--
			lo, hi := g.x[order[i]][f], g.x[order[i+1]][f]
			if lo == hi {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			gain := n*impurity - nl*gini(left, nl) - nr*gini(right, nr)
			if gain > bestGain+1e-12 {
				bestFeature, bestGain = f, gain
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold == hi {
					bestThreshold = lo
				}
			}
		}
	}
	if bestFeature < 0 {
		return idx
	}

	var ls, rs []int
	for _, s := range samples {
		if g.x[s][bestFeature] <= bestThreshold {
			ls = append(ls, s)
		} else {
			rs = append(rs, s)
		}
	}
	g.decrease[bestFeature] += bestGain
	l := g.grow(ls, depth+1)
	r := g.grow(rs, depth+1)
	nd := &g.tree.nodes[idx]
	nd.feature = bestFeature
	nd.threshold = bestThreshold
	nd.left = l
	nd.right = r
	return idx
}

// Predict returns the majority class of the leaf reached by row.
// Ties go to the lowest class index.
func (t *Tree) Predict(row []float64) int {
	nd := t.nodes[0]
	for nd.feature >= 0 {
		if row[nd.feature] <= nd.threshold {
			nd = t.nodes[nd.left]
		} else {
			nd = t.nodes[nd.right]
		}
	}
	best := 0
	for c, n := range nd.counts {
		if n > nd.counts[best] {
			best = c
		}
	}
	return best
}

// Nodes returns the number of nodes in the tree.
func (t *Tree) Nodes() int {
	return len(t.nodes)
}
