// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"flag"
	"io"
	"strconv"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *exportNumpy) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "wide input `file`")
	outputFilename := flags.String("o", "-", "numpy output `file`")
	annotationsFilename := flags.String("output-annotations", "", "column annotations output `file`")
	samplesFilename := flags.String("output-samples", "", "row annotations output `file`")
	_, err := parseFlags(flags, args)
	if err != nil {
		return err
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
	rows, cols := len(wide.Rows), len(wide.Markers)*len(wide.Stats)
	log.Printf("writing numpy: %d rows, %d cols", rows, cols)
	err = writeFileAtomic(*outputFilename, stdout, func(w io.Writer) error {
		return writeNumpy(w, rows, cols, wideArray(wide))
	})
	if err != nil {
		return err
	}
	if *annotationsFilename != "" {
		err = writeFileAtomic(*annotationsFilename, stdout, wide.writeColumnAnnotations)
		if err != nil {
			return err
		}
	}
	if *samplesFilename != "" {
		err = writeFileAtomic(*samplesFilename, stdout, wide.writeSampleAnnotations)
		if err != nil {
			return err
		}
	}
	return nil
}

// wideArray returns the feature values of wt in row-major order.
// Missing values stay NaN.
func wideArray(wt *WideTable) []float64 {
	cols := len(wt.Markers) * len(wt.Stats)
	out := make([]float64, 0, len(wt.Rows)*cols)
	for _, r := range wt.Rows {
		out = append(out, r.Values...)
	}
	return out
}

// writeNumpy writes a rows x cols float64 array in .npy format.
func writeNumpy(w io.Writer, rows, cols int, data []float64) error {
	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return err
	}
	npw.Shape = []int{rows, cols}
	return npw.WriteFloat64(data)
}

// writeColumnAnnotations writes one line per numpy column:
// index, column name, marker id, statistic.
func (wt *WideTable) writeColumnAnnotations(w io.Writer) error {
	return writeCSV(w, []string{"index", "column", colMarkerID, "stat"}, func(emit func([]string) error) error {
		col := 0
		for _, m := range wt.Markers {
			for _, s := range wt.Stats {
				err := emit([]string{strconv.Itoa(col), m + "_" + s, m, s})
				if err != nil {
					return err
				}
				col++
			}
		}
		return nil
	})
}

// writeSampleAnnotations writes one line per numpy row: index,
// patient id, label.
func (wt *WideTable) writeSampleAnnotations(w io.Writer) error {
	return writeCSV(w, []string{"index", colPatientID, colLabel}, func(emit func([]string) error) error {
		for i, r := range wt.Rows {
			err := emit([]string{strconv.Itoa(i), r.PatientID, r.Label})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
