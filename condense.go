// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"flag"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// CondensedRecord summarizes the log-transformed replicates of one
// marker for one patient. LogCV is NaN when LogMean is too close to
// zero for the ratio to mean anything.
type CondensedRecord struct {
	PatientID string
	MarkerID  string
	LogMean   float64
	LogSD     float64
	LogCV     float64
	Label     string
	Fields    []string
}

// Stat returns the named statistic (log_mean, log_sd, or log_cv).
func (r CondensedRecord) Stat(name string) float64 {
	switch name {
	case StatLogMean:
		return r.LogMean
	case StatLogSD:
		return r.LogSD
	case StatLogCV:
		return r.LogCV
	}
	return math.NaN()
}

type CondensedTable struct {
	ClinicalColumns []string
	Records         []CondensedRecord
}

type groupKey struct {
	patient string
	marker  string
}

// Condense collapses the replicate readings of each (patient,
// marker) pair into log-scale mean, sample standard deviation and
// coefficient of variation. Every group must have exactly
// cfg.ReplicateCount readings with distinct replicate indices, and
// every value must be positive. Any violation fails the whole table.
func Condense(mt *MergedTable, cfg Config) (*CondensedTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logf, _ := cfg.logFunc()

	groups := map[groupKey][]int{}
	for i, r := range mt.Records {
		k := groupKey{r.PatientID, r.MarkerID}
		groups[k] = append(groups[k], i)
	}
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].patient != keys[j].patient {
			return keys[i].patient < keys[j].patient
		}
		return keys[i].marker < keys[j].marker
	})

	// Check every group's multiplicity before computing anything,
	// so a bad group anywhere means no output at all.
	for _, k := range keys {
		members := groups[k]
		if len(members) != cfg.ReplicateCount {
			return nil, &ReplicateCountError{PatientID: k.patient, MarkerID: k.marker, Got: len(members), Want: cfg.ReplicateCount}
		}
		seen := make(map[int]bool, len(members))
		for _, i := range members {
			rep := mt.Records[i].Replicate
			if seen[rep] {
				return nil, &ReplicateCountError{PatientID: k.patient, MarkerID: k.marker, Got: len(members), Want: cfg.ReplicateCount, Detail: fmt.Sprintf("duplicate replicate_index %d", rep)}
			}
			seen[rep] = true
		}
	}

	ct := &CondensedTable{
		ClinicalColumns: mt.ClinicalColumns,
		Records:         make([]CondensedRecord, 0, len(keys)),
	}
	logs := make([]float64, cfg.ReplicateCount)
	for _, k := range keys {
		members := groups[k]
		for j, i := range members {
			v := mt.Records[i].Value
			if !(v > 0) {
				return nil, &NumericDomainError{PatientID: k.patient, MarkerID: k.marker, Value: v, Detail: "log of non-positive replicate value"}
			}
			if math.IsInf(v, 1) {
				return nil, &NumericDomainError{PatientID: k.patient, MarkerID: k.marker, Value: v, Detail: "non-finite replicate value"}
			}
			logs[j] = logf(v)
		}
		mean, sd := stat.MeanStdDev(logs, nil)
		cv := math.NaN()
		if math.Abs(mean) >= cfg.CVEpsilon {
			cv = sd / mean
		}
		first := mt.Records[members[0]]
		ct.Records = append(ct.Records, CondensedRecord{
			PatientID: k.patient,
			MarkerID:  k.marker,
			LogMean:   mean,
			LogSD:     sd,
			LogCV:     cv,
			Label:     first.Label,
			Fields:    first.Fields,
		})
	}
	log.Infof("condensed %d readings into %d patient/marker summaries", len(mt.Records), len(ct.Records))
	return ct, nil
}

func (ct *CondensedTable) WriteCSV(w io.Writer) error {
	header := append([]string{colPatientID, colMarkerID, StatLogMean, StatLogSD, StatLogCV, colLabel}, ct.ClinicalColumns...)
	return writeCSV(w, header, func(emit func([]string) error) error {
		row := make([]string, len(header))
		for _, r := range ct.Records {
			row[0] = r.PatientID
			row[1] = r.MarkerID
			row[2] = formatValue(r.LogMean)
			row[3] = formatValue(r.LogSD)
			row[4] = formatValue(r.LogCV)
			row[5] = r.Label
			copy(row[6:], r.Fields)
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// ParseCondensed reads a table written by (*CondensedTable)WriteCSV.
func ParseCondensed(name string, r io.Reader) (*CondensedTable, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	idx, err := t.require(colPatientID, colMarkerID, StatLogMean, StatLogSD, StatLogCV, colLabel)
	if err != nil {
		return nil, err
	}
	isCore := map[int]bool{}
	for _, i := range idx {
		isCore[i] = true
	}
	ct := &CondensedTable{}
	var auxCols []int
	for i, col := range t.header {
		if !isCore[i] {
			auxCols = append(auxCols, i)
			ct.ClinicalColumns = append(ct.ClinicalColumns, col)
		}
	}
	fields := map[string][]string{}
	for i, row := range t.rows {
		if len(row) != len(t.header) {
			return nil, schemaErrorf(name, "line %d has %d fields, header has %d", t.line(i), len(row), len(t.header))
		}
		rec := CondensedRecord{
			PatientID: strings.TrimSpace(row[idx[0]]),
			MarkerID:  strings.TrimSpace(row[idx[1]]),
			Label:     strings.TrimSpace(row[idx[5]]),
		}
		if rec.PatientID == "" || rec.MarkerID == "" {
			return nil, schemaErrorf(name, "line %d: empty %s or %s", t.line(i), colPatientID, colMarkerID)
		}
		for j, dst := range []*float64{&rec.LogMean, &rec.LogSD, &rec.LogCV} {
			*dst, err = parseValue(row[idx[2+j]])
			if err != nil {
				return nil, schemaErrorf(name, "line %d: %s: %s", t.line(i), knownStats[j], err)
			}
		}
		if math.IsNaN(rec.LogMean) || math.IsNaN(rec.LogSD) || rec.LogSD < 0 {
			return nil, schemaErrorf(name, "line %d: invalid %s/%s %q/%q", t.line(i), StatLogMean, StatLogSD, row[idx[2]], row[idx[3]])
		}
		f, ok := fields[rec.PatientID]
		if !ok {
			f = make([]string, len(auxCols))
			for j, col := range auxCols {
				f[j] = row[col]
			}
			fields[rec.PatientID] = f
		}
		rec.Fields = f
		ct.Records = append(ct.Records, rec)
	}
	return ct, nil
}

type condenseCmd struct{}

func (cmd *condenseCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *condenseCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "merged input `file`")
	outputFilename := flags.String("o", "-", "output `file`")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	input, name, err := openInput(*inputFilename, stdin)
	if err != nil {
		return err
	}
	defer input.Close()
	merged, err := ParseMerged(name, input)
	if err != nil {
		return err
	}
	condensed, err := Condense(merged, cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(*outputFilename, stdout, condensed.WriteCSV)
}
