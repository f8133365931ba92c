// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Input file names expected in each cohort directory.
const (
	CohortClinicalFilename    = "clinical.csv"
	CohortMethylationFilename = "methylation.csv"
)

// Cohort is one directory of pipeline inputs.
type Cohort struct {
	Name                string
	ClinicalFilename    string
	MethylationFilename string
}

// FindCohorts returns the subdirectories of dir that contain both
// input files, sorted by name. Other subdirectories are skipped.
func FindCohorts(dir string) ([]Cohort, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var cohorts []Cohort
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		c := Cohort{
			Name:                ent.Name(),
			ClinicalFilename:    filepath.Join(dir, ent.Name(), CohortClinicalFilename),
			MethylationFilename: filepath.Join(dir, ent.Name(), CohortMethylationFilename),
		}
		if !isFile(c.ClinicalFilename) || !isFile(c.MethylationFilename) {
			log.WithField("dir", ent.Name()).Debug("not a cohort directory, skipping")
			continue
		}
		cohorts = append(cohorts, c)
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].Name < cohorts[j].Name })
	return cohorts, nil
}

func isFile(fnm string) bool {
	fi, err := os.Stat(fnm)
	return err == nil && fi.Mode().IsRegular()
}

// RunCohorts runs the pipeline on each cohort, at most jobs at a
// time, writing each cohort's outputs to its own subdirectory of
// cfg.OutputDir. Cohorts share no state. The first failure cancels
// cohorts that have not finished yet; its error is returned.
func RunCohorts(ctx context.Context, cohorts []Cohort, jobs int, cfg Config) ([]*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if jobs < 1 {
		jobs = 1
	}
	results := make([]*Result, len(cohorts))
	sem := make(chan bool, jobs)
	var wg WaitGroup
	for i, c := range cohorts {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- true
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			ccfg := cfg
			ccfg.WideStats = append([]string(nil), cfg.WideStats...)
			ccfg.OutputDir = filepath.Join(cfg.OutputDir, c.Name)
			res, err := RunPipeline(ctx, c.Name, c.ClinicalFilename, c.MethylationFilename, ccfg)
			if err != nil {
				wg.Error(withContext(err, "cohort %s", c.Name))
				cancel()
				return
			}
			results[i] = res
		}()
	}
	err := wg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

// WaitGroup is a sync.WaitGroup that also remembers the first error
// reported by any of its goroutines.
type WaitGroup struct {
	sync.WaitGroup
	err     error
	errOnce sync.Once
}

func (wg *WaitGroup) Error(err error) {
	if err != nil {
		wg.errOnce.Do(func() { wg.err = err })
	}
}

func (wg *WaitGroup) Wait() error {
	wg.WaitGroup.Wait()
	return wg.err
}

type runCohortsCmd struct{}

func (cmd *runCohortsCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *runCohortsCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputDir := flags.String("input-dir", "", "`directory` with one subdirectory per cohort, each containing clinical.csv and methylation.csv")
	jobs := flags.Int("jobs", 2, "number of cohorts to process concurrently")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	if *inputDir == "" {
		return usageError{fmt.Errorf("must provide -input-dir")}
	}
	cohorts, err := FindCohorts(*inputDir)
	if err != nil {
		return err
	}
	if len(cohorts) == 0 {
		return fmt.Errorf("no cohort directories found in %s", *inputDir)
	}
	log.Infof("processing %d cohorts", len(cohorts))
	_, err = RunCohorts(context.Background(), cohorts, *jobs, cfg)
	if err != nil {
		return err
	}
	for _, c := range cohorts {
		fmt.Fprintln(stdout, filepath.Join(cfg.OutputDir, c.Name))
	}
	return nil
}
