// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// standardize scales a to zero mean and unit variance in place. A
// constant column becomes all zeros.
func standardize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	for i, x := range a {
		if std > 0 {
			a[i] = (x - mean) / std
		} else {
			a[i] = 0
		}
	}
}

// logRegScorer fits an L2-penalized logistic regression of the label
// on all standardized markers and scores each marker by the absolute
// value of its coefficient. With more than two classes it fits one
// model per class (one-vs-rest) and averages the absolute
// coefficients.
type logRegScorer struct{}

func (logRegScorer) Method() string { return MethodLogReg }

func (logRegScorer) Score(ds *Dataset, cfg Config) (MethodScores, error) {
	rows, cols := ds.X.Dims()
	names := []string{"outcome", "icept"}
	data := [][]statmodel.Dtype{make([]statmodel.Dtype, rows), make([]statmodel.Dtype, rows)}
	for i := range data[1] {
		data[1][i] = 1
	}
	l2 := cfg.LogRegL2
	if rows < cols {
		l2 *= float64(cols) / float64(rows)
		logrus.WithFields(logrus.Fields{
			"samples":  rows,
			"features": cols,
			"l2":       l2,
		}).Warn("fewer samples than markers; strengthening logistic regression penalty")
	}
	penalty := map[string]float64{}
	for j := 0; j < cols; j++ {
		series := mat.Col(nil, j, ds.X)
		standardize(series)
		data = append(data, series)
		name := fmt.Sprintf("m%d", j)
		names = append(names, name)
		penalty[name] = l2
	}

	fits := len(ds.Classes)
	if fits == 2 {
		// Both one-vs-rest fits of a binary problem give the
		// same magnitudes; fit the last class only.
		fits = 1
	}
	res := MethodScores{Values: make([]float64, cols)}
	for k := 0; k < fits; k++ {
		positive := len(ds.Classes) - 1 - k
		for i, y := range ds.Y {
			if y == positive {
				data[0][i] = 1
			} else {
				data[0][i] = 0
			}
		}
		coef, err := fitLogistic(data, names, penalty)
		if err != nil {
			return res, err
		}
		for j, b := range coef {
			res.Values[j] += math.Abs(b) / float64(fits)
		}
	}
	return res, nil
}

// fitLogistic fits outcome ~ icept + m0 + m1 + ... and returns the
// marker coefficients (intercept excluded).
func fitLogistic(data [][]statmodel.Dtype, names []string, penalty map[string]float64) (coef []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			// typically "matrix singular or near-singular with condition number +Inf"
			coef, err = nil, &ConvergenceError{Method: MethodLogReg, Detail: fmt.Sprint(r)}
		}
	}()
	config := &glm.Config{
		Family:    glm.NewFamily(glm.BinomialFamily),
		FitMethod: "IRLS",
		Log:       log.New(io.Discard, "", 0),
	}
	if len(penalty) > 0 {
		config.FitMethod = "Gradient"
		config.L2Penalty = penalty
	}
	dataset := statmodel.NewDataset(data, names)
	model, err := glm.NewGLM(dataset, "outcome", names[1:], config)
	if err != nil {
		return nil, &ConvergenceError{Method: MethodLogReg, Detail: err.Error()}
	}
	params := model.Fit().Params()
	if len(params) != len(names)-1 {
		return nil, &ConvergenceError{Method: MethodLogReg, Detail: fmt.Sprintf("got %d parameters, want %d", len(params), len(names)-1)}
	}
	for _, b := range params {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, &ConvergenceError{Method: MethodLogReg, Detail: "non-finite coefficient"}
		}
	}
	return params[1:], nil
}
