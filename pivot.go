// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"flag"
	"io"
	"math"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// WideRow holds one patient's values, aligned with
// WideTable.Columns(). Missing values are NaN.
type WideRow struct {
	PatientID string
	Label     string
	Values    []float64
}

// WideTable has one row per patient and one column per
// (marker, statistic) pair. Every row has the same columns.
type WideTable struct {
	Markers []string
	Stats   []string
	Rows    []WideRow
}

// Columns returns the feature column names, marker-major:
// m1_stat1, m1_stat2, ..., m2_stat1, ...
func (wt *WideTable) Columns() []string {
	cols := make([]string, 0, len(wt.Markers)*len(wt.Stats))
	for _, m := range wt.Markers {
		for _, s := range wt.Stats {
			cols = append(cols, m+"_"+s)
		}
	}
	return cols
}

// Column returns the index of the (marker, stat) column in
// WideRow.Values, or -1.
func (wt *WideTable) Column(marker, stat int) int {
	if marker < 0 || marker >= len(wt.Markers) || stat < 0 || stat >= len(wt.Stats) {
		return -1
	}
	return marker*len(wt.Stats) + stat
}

func (wt *WideTable) statIndex(stat string) int {
	for i, s := range wt.Stats {
		if s == stat {
			return i
		}
	}
	return -1
}

// value returns the named value for row i, or NaN if the column does
// not exist or the value is missing.
func (wt *WideTable) value(i int, marker, stat string) float64 {
	m := sort.SearchStrings(wt.Markers, marker)
	if m >= len(wt.Markers) || wt.Markers[m] != marker {
		return math.NaN()
	}
	col := wt.Column(m, wt.statIndex(stat))
	if col < 0 {
		return math.NaN()
	}
	return wt.Rows[i].Values[col]
}

// CompleteMatrix returns a patients x markers matrix of the given
// statistic, keeping only markers with a value for every patient.
// Markers left out are returned in excluded and logged.
func (wt *WideTable) CompleteMatrix(stat string) (markers []string, x *mat.Dense, excluded []string, err error) {
	s := wt.statIndex(stat)
	if s < 0 {
		return nil, nil, nil, schemaErrorf("wide", "no %s columns (have %q)", stat, wt.Stats)
	}
	var keep []int
	for m, marker := range wt.Markers {
		col := wt.Column(m, s)
		complete := true
		for _, r := range wt.Rows {
			if math.IsNaN(r.Values[col]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, col)
			markers = append(markers, marker)
		} else {
			excluded = append(excluded, marker)
		}
	}
	if len(excluded) > 0 {
		log.WithField("markers", excluded).Warnf("excluding %d markers with missing %s values", len(excluded), stat)
	}
	if len(keep) == 0 || len(wt.Rows) == 0 {
		return nil, nil, excluded, schemaErrorf("wide", "no marker has a complete %s column", stat)
	}
	x = mat.NewDense(len(wt.Rows), len(keep), nil)
	for i, r := range wt.Rows {
		for j, col := range keep {
			x.Set(i, j, r.Values[col])
		}
	}
	return markers, x, excluded, nil
}

// Pivot reshapes condensed long-format records into a wide table
// with the statistics named in cfg.WideStats. The column set is the
// union of markers over all patients; a patient with no record for a
// marker gets NaN in that marker's columns.
func Pivot(ct *CondensedTable, cfg Config) (*WideTable, error) {
	const table = "condensed"
	for _, s := range cfg.WideStats {
		if statIndex(s) < 0 {
			return nil, schemaErrorf(table, "unknown statistic %q", s)
		}
	}
	markerSet := map[string]bool{}
	patientIdx := map[string]int{}
	var patients []string
	labels := map[string]string{}
	seen := map[groupKey]bool{}
	for _, r := range ct.Records {
		k := groupKey{r.PatientID, r.MarkerID}
		if seen[k] {
			return nil, schemaErrorf(table, "duplicate record for patient %q marker %q", r.PatientID, r.MarkerID)
		}
		seen[k] = true
		markerSet[r.MarkerID] = true
		if lbl, ok := labels[r.PatientID]; !ok {
			labels[r.PatientID] = r.Label
			patients = append(patients, r.PatientID)
		} else if lbl != r.Label {
			return nil, schemaErrorf(table, "patient %q has conflicting labels %q and %q", r.PatientID, lbl, r.Label)
		}
	}
	sort.Strings(patients)
	for i, p := range patients {
		patientIdx[p] = i
	}
	wt := &WideTable{Stats: append([]string(nil), cfg.WideStats...)}
	for m := range markerSet {
		wt.Markers = append(wt.Markers, m)
	}
	sort.Strings(wt.Markers)
	markerIdx := make(map[string]int, len(wt.Markers))
	for i, m := range wt.Markers {
		markerIdx[m] = i
	}

	ncols := len(wt.Markers) * len(wt.Stats)
	wt.Rows = make([]WideRow, len(patients))
	for i, p := range patients {
		values := make([]float64, ncols)
		for j := range values {
			values[j] = math.NaN()
		}
		wt.Rows[i] = WideRow{PatientID: p, Label: labels[p], Values: values}
	}
	for _, r := range ct.Records {
		row := wt.Rows[patientIdx[r.PatientID]]
		m := markerIdx[r.MarkerID]
		for s, stat := range wt.Stats {
			row.Values[wt.Column(m, s)] = r.Stat(stat)
		}
	}
	missing := len(patients)*len(wt.Markers) - len(ct.Records)
	log.WithFields(log.Fields{
		"patients": len(patients),
		"markers":  len(wt.Markers),
		"missing":  missing,
	}).Info("pivoted to wide format")
	return wt, nil
}

func (wt *WideTable) WriteCSV(w io.Writer) error {
	header := append([]string{colPatientID, colLabel}, wt.Columns()...)
	return writeCSV(w, header, func(emit func([]string) error) error {
		row := make([]string, len(header))
		for _, r := range wt.Rows {
			row[0] = r.PatientID
			row[1] = r.Label
			for j, v := range r.Values {
				row[2+j] = formatValue(v)
			}
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// splitFeatureColumn splits "cg123_log_mean" into ("cg123",
// "log_mean").
func splitFeatureColumn(col string) (marker, stat string, ok bool) {
	for _, s := range knownStats {
		if strings.HasSuffix(col, "_"+s) && len(col) > len(s)+1 {
			return col[:len(col)-len(s)-1], s, true
		}
	}
	return "", "", false
}

// ParseWide reads a table written by (*WideTable)WriteCSV. Feature
// columns must form a complete marker x statistic grid.
func ParseWide(name string, r io.Reader) (*WideTable, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	idx, err := t.require(colPatientID, colLabel)
	if err != nil {
		return nil, err
	}
	type cell struct{ marker, stat int }
	wt := &WideTable{}
	markerIdx := map[string]int{}
	statIdx := map[string]int{}
	colCell := map[int]cell{}
	for i, col := range t.header {
		if i == idx[0] || i == idx[1] {
			continue
		}
		marker, stat, ok := splitFeatureColumn(col)
		if !ok {
			return nil, schemaErrorf(name, "column %q is not <marker_id>_<statistic>", col)
		}
		if _, ok := markerIdx[marker]; !ok {
			markerIdx[marker] = len(wt.Markers)
			wt.Markers = append(wt.Markers, marker)
		}
		if _, ok := statIdx[stat]; !ok {
			statIdx[stat] = len(wt.Stats)
			wt.Stats = append(wt.Stats, stat)
		}
		colCell[i] = cell{markerIdx[marker], statIdx[stat]}
	}
	if len(colCell) != len(wt.Markers)*len(wt.Stats) {
		return nil, schemaErrorf(name, "%d feature columns do not form a %d marker x %d statistic grid", len(colCell), len(wt.Markers), len(wt.Stats))
	}
	// Re-sort markers so Column() and value() agree with Pivot
	// output regardless of the file's column order.
	sorted := append([]string(nil), wt.Markers...)
	sort.Strings(sorted)
	remap := make([]int, len(wt.Markers))
	for i, m := range sorted {
		remap[markerIdx[m]] = i
	}
	wt.Markers = sorted

	seen := map[string]bool{}
	for i, row := range t.rows {
		if len(row) != len(t.header) {
			return nil, schemaErrorf(name, "line %d has %d fields, header has %d", t.line(i), len(row), len(t.header))
		}
		wr := WideRow{
			PatientID: strings.TrimSpace(row[idx[0]]),
			Label:     strings.TrimSpace(row[idx[1]]),
			Values:    make([]float64, len(colCell)),
		}
		if wr.PatientID == "" {
			return nil, schemaErrorf(name, "line %d: empty %s", t.line(i), colPatientID)
		}
		if seen[wr.PatientID] {
			return nil, schemaErrorf(name, "line %d: duplicate patient %q", t.line(i), wr.PatientID)
		}
		seen[wr.PatientID] = true
		for j, c := range colCell {
			v, err := parseValue(row[j])
			if err != nil {
				return nil, schemaErrorf(name, "line %d column %q: %s", t.line(i), t.header[j], err)
			}
			wr.Values[wt.Column(remap[c.marker], c.stat)] = v
		}
		wt.Rows = append(wt.Rows, wr)
	}
	return wt, nil
}

func ReadWide(fnm string) (*WideTable, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseWide(fnm, f)
}

type pivotCmd struct{}

func (cmd *pivotCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *pivotCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "condensed input `file`")
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
	condensed, err := ParseCondensed(name, input)
	if err != nil {
		return err
	}
	wide, err := Pivot(condensed, cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(*outputFilename, stdout, wide.WriteCSV)
}
