// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Output file names, relative to the run's output directory.
const (
	MergedFilename    = "merged.csv"
	CondensedFilename = "condensed.csv"
	WideFilename      = "wide.csv"
	ScoresFilename    = "feature_scores.csv"
)

// Result holds every intermediate table of a pipeline run.
type Result struct {
	Merged    *MergedTable
	Condensed *CondensedTable
	Wide      *WideTable
	Ranking   *Ranking
	Manifest  *Manifest
}

// RunPipeline runs merge, condense, pivot and rank on one cohort and
// writes each stage's table to cfg.OutputDir as soon as the stage
// succeeds. A failing stage stops the run and leaves no output file
// of its own.
func RunPipeline(ctx context.Context, cohort, clinicalFilename, methylationFilename string, cfg Config) (*Result, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	logger := log.WithField("cohort", cohort)
	manifest := newManifest(cohort, cfg)
	for _, fnm := range []string{clinicalFilename, methylationFilename} {
		err = manifest.addInput(fnm)
		if err != nil {
			return nil, err
		}
	}
	res := &Result{Manifest: manifest}
	output := func(fnm string, write func(io.Writer) error) error {
		path := filepath.Join(cfg.OutputDir, fnm)
		err := writeFileAtomic(path, nil, write)
		if err != nil {
			return err
		}
		return manifest.addOutput(cfg.OutputDir, path)
	}

	logger.Info("merging")
	clinical, err := ReadClinical(clinicalFilename, cfg)
	if err != nil {
		return nil, err
	}
	readings, err := ReadMethylation(methylationFilename)
	if err != nil {
		return nil, err
	}
	res.Merged, err = Merge(clinical, readings, cfg)
	if err != nil {
		return nil, err
	}
	err = output(MergedFilename, res.Merged.WriteCSV)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("condensing replicates")
	res.Condensed, err = Condense(res.Merged, cfg)
	if err != nil {
		return nil, err
	}
	err = output(CondensedFilename, res.Condensed.WriteCSV)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("pivoting")
	res.Wide, err = Pivot(res.Condensed, cfg)
	if err != nil {
		return nil, err
	}
	err = output(WideFilename, res.Wide.WriteCSV)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("ranking")
	ranker, err := NewRanker(cfg)
	if err != nil {
		return nil, err
	}
	res.Ranking, err = ranker.Rank(res.Wide, cfg)
	if err != nil {
		return nil, err
	}
	err = output(ScoresFilename, res.Ranking.WriteCSV)
	if err != nil {
		return nil, err
	}
	manifest.Markers = len(res.Ranking.Scores)
	manifest.Excluded = res.Ranking.Excluded

	if cfg.Plot {
		fnm := filepath.Join(cfg.OutputDir, plotFilenameDefault)
		if err = PlotTopMarkers(fnm, res.Ranking, cfg.TopK); err != nil {
			logger.WithError(err).Warn("plot failed; ranking output is unaffected")
		} else if err = manifest.addOutput(cfg.OutputDir, fnm); err != nil {
			return nil, err
		}
	}
	err = manifest.Write(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	logger.WithField("run_id", manifest.RunID).Info("done")
	return res, nil
}

type runCmd struct{}

func (cmd *runCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *runCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	clinicalFilename := flags.String("clinical", "", "clinical `file` (csv, optionally gzipped)")
	methylationFilename := flags.String("methylation", "", "long-format methylation `file` (csv, optionally gzipped)")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	if *clinicalFilename == "" || *methylationFilename == "" {
		return usageError{fmt.Errorf("must provide both -clinical and -methylation")}
	}
	_, err = RunPipeline(context.Background(), "", *clinicalFilename, *methylationFilename, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, filepath.Join(cfg.OutputDir, ScoresFilename))
	return nil
}
