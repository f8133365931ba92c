// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"flag"
	"fmt"
	"io"

	"github.com/james-bowman/nlp"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type pcaCmd struct{}

func (cmd *pcaCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *pcaCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "wide input `file`")
	outputFilename := flags.String("o", "-", "numpy output `file`")
	components := flags.Int("components", 4, "number of components")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	if *components < 1 {
		return usageError{fmt.Errorf("invalid number of components %d", *components)}
	}
	input, name, err := openInput(*inputFilename, stdin)
	if err != nil {
		return err
	}
	defer input.Close()
	wide, err := ParseWide(name, input)
	if err != nil {
		return err
	}
	_, x, _, err := wide.CompleteMatrix(cfg.RankStat)
	if err != nil {
		return err
	}
	pcs, err := PCA(x, *components)
	if err != nil {
		return err
	}
	rows, cols := pcs.Dims()
	log.Printf("writing numpy: %d rows, %d cols", rows, cols)
	return writeFileAtomic(*outputFilename, stdout, func(w io.Writer) error {
		return writeNumpy(w, rows, cols, mat.DenseCopyOf(pcs).RawMatrix().Data)
	})
}

// PCA projects the rows of x (samples x features) onto the first
// components principal components. The number of components is
// capped at min(samples, features).
func PCA(x mat.Matrix, components int) (mat.Matrix, error) {
	rows, cols := x.Dims()
	if components > rows {
		components = rows
	}
	if components > cols {
		components = cols
	}
	log.Printf("fitting PCA: %d samples, %d features, %d components", rows, cols, components)
	// nlp expects features x samples.
	transformer := nlp.NewPCA(components)
	transformer.Fit(x.T())
	mtx, err := transformer.Transform(x.T())
	if err != nil {
		return nil, err
	}
	return mtx.T(), nil
}
