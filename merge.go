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
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Column names of the long-format tables.
const (
	colPatientID = "patient_id"
	colMarkerID  = "marker_id"
	colReplicate = "replicate_index"
	colValue     = "value"
	colLabel     = "label"
)

// ClinicalRecord is one patient's metadata. Fields are aligned with
// ClinicalTable.Columns.
type ClinicalRecord struct {
	PatientID string
	Label     string
	Fields    []string
}

type ClinicalTable struct {
	// Auxiliary column names, in input order.
	Columns []string
	Records []ClinicalRecord
}

// MethylationReading is one replicate measurement of one marker for
// one patient.
type MethylationReading struct {
	PatientID string
	MarkerID  string
	Replicate int
	Value     float64
}

// MergedRecord is a reading annotated with its patient's clinical
// label and auxiliary fields.
type MergedRecord struct {
	MethylationReading
	Label  string
	Fields []string
}

type MergedTable struct {
	ClinicalColumns []string
	Records         []MergedRecord

	// Readings dropped because no clinical record matched.
	DroppedReadings int
	// Sorted distinct patient ids of the dropped readings.
	DroppedPatients []string
	// Markers dropped in trimmed mode (sorted), and how many
	// readings went with them.
	DroppedMarkers        []string
	DroppedMarkerReadings int
}

// ParseClinical reads a clinical table. The id and label columns are
// named by cfg; all other columns are carried as auxiliary fields,
// except those that would collide with methylation/merged column
// names.
func ParseClinical(name string, r io.Reader, cfg Config) (*ClinicalTable, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	idx, err := t.require(cfg.IDColumn, cfg.LabelColumn)
	if err != nil {
		return nil, err
	}
	reserved := map[string]bool{colPatientID: true, colMarkerID: true, colReplicate: true, colValue: true, colLabel: true}
	var auxCols []int
	ct := &ClinicalTable{}
	for i, col := range t.header {
		if i == idx[0] || i == idx[1] {
			continue
		}
		if reserved[col] {
			log.Infof("%s: ignoring clinical column %q, which collides with a methylation column", name, col)
			continue
		}
		auxCols = append(auxCols, i)
		ct.Columns = append(ct.Columns, col)
	}
	for i, row := range t.rows {
		if len(row) != len(t.header) {
			return nil, schemaErrorf(name, "line %d has %d fields, header has %d", t.line(i), len(row), len(t.header))
		}
		rec := ClinicalRecord{
			PatientID: strings.TrimSpace(row[idx[0]]),
			Label:     strings.TrimSpace(row[idx[1]]),
			Fields:    make([]string, len(auxCols)),
		}
		if rec.PatientID == "" {
			return nil, schemaErrorf(name, "line %d: empty %s", t.line(i), cfg.IDColumn)
		}
		for j, col := range auxCols {
			rec.Fields[j] = row[col]
		}
		ct.Records = append(ct.Records, rec)
	}
	return ct, nil
}

func ReadClinical(fnm string, cfg Config) (*ClinicalTable, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseClinical(fnm, f, cfg)
}

// ParseMethylation reads a long-format methylation table with
// patient_id, marker_id, replicate_index and value columns.
func ParseMethylation(name string, r io.Reader) ([]MethylationReading, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	idx, err := t.require(colPatientID, colMarkerID, colReplicate, colValue)
	if err != nil {
		return nil, err
	}
	readings := make([]MethylationReading, 0, len(t.rows))
	for i, row := range t.rows {
		if len(row) != len(t.header) {
			return nil, schemaErrorf(name, "line %d has %d fields, header has %d", t.line(i), len(row), len(t.header))
		}
		rd, err := parseReading(row, idx)
		if err != nil {
			return nil, schemaErrorf(name, "line %d: %s", t.line(i), err)
		}
		readings = append(readings, rd)
	}
	return readings, nil
}

func ReadMethylation(fnm string) ([]MethylationReading, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMethylation(fnm, f)
}

// parseReading parses the patient_id, marker_id, replicate_index and
// value fields found at idx[0..3].
func parseReading(row []string, idx []int) (MethylationReading, error) {
	rd := MethylationReading{
		PatientID: strings.TrimSpace(row[idx[0]]),
		MarkerID:  strings.TrimSpace(row[idx[1]]),
	}
	if rd.PatientID == "" {
		return rd, fmt.Errorf("empty %s", colPatientID)
	}
	if rd.MarkerID == "" {
		return rd, fmt.Errorf("empty %s", colMarkerID)
	}
	var err error
	rd.Replicate, err = strconv.Atoi(strings.TrimSpace(row[idx[2]]))
	if err != nil {
		return rd, fmt.Errorf("%s: %s", colReplicate, err)
	}
	rd.Value, err = parseValue(row[idx[3]])
	if err != nil {
		return rd, fmt.Errorf("%s: %s", colValue, err)
	}
	if math.IsNaN(rd.Value) {
		return rd, fmt.Errorf("missing %s for patient %q marker %q", colValue, rd.PatientID, rd.MarkerID)
	}
	return rd, nil
}

func normalizeID(cfg Config, id string) string {
	id = strings.TrimSpace(id)
	if cfg.NormalizeIDs {
		id = strings.ToUpper(id)
	}
	return id
}

// Merge joins methylation readings with clinical records on patient
// id (inner join). Readings with no matching patient are dropped and
// counted. In trimmed mode, markers that were not observed for every
// matched patient are dropped too, so the downstream wide table is
// rectangular.
func Merge(clinical *ClinicalTable, readings []MethylationReading, cfg Config) (*MergedTable, error) {
	const table = "clinical"
	patients := make(map[string]*ClinicalRecord, len(clinical.Records))
	for i := range clinical.Records {
		rec := &clinical.Records[i]
		id := normalizeID(cfg, rec.PatientID)
		if prev, dup := patients[id]; dup {
			return nil, schemaErrorf(table, "duplicate patient id %q (also %q)", rec.PatientID, prev.PatientID)
		}
		if len(rec.Fields) != len(clinical.Columns) {
			return nil, schemaErrorf(table, "patient %q has %d fields, want %d", rec.PatientID, len(rec.Fields), len(clinical.Columns))
		}
		patients[id] = rec
	}

	mt := &MergedTable{
		ClinicalColumns: clinical.Columns,
		Records:         make([]MergedRecord, 0, len(readings)),
	}
	dropped := map[string]bool{}
	for _, rd := range readings {
		rd.PatientID = normalizeID(cfg, rd.PatientID)
		rec, ok := patients[rd.PatientID]
		if !ok {
			mt.DroppedReadings++
			dropped[rd.PatientID] = true
			continue
		}
		mt.Records = append(mt.Records, MergedRecord{
			MethylationReading: rd,
			Label:              rec.Label,
			Fields:             rec.Fields,
		})
	}
	for id := range dropped {
		mt.DroppedPatients = append(mt.DroppedPatients, id)
	}
	sort.Strings(mt.DroppedPatients)
	if mt.DroppedReadings > 0 {
		sample := mt.DroppedPatients
		if len(sample) > 5 {
			sample = sample[:5]
		}
		log.WithFields(log.Fields{
			"dropped":  mt.DroppedReadings,
			"patients": sample,
		}).Warnf("dropped %d methylation readings with no clinical match (%d patients)", mt.DroppedReadings, len(mt.DroppedPatients))
	}

	if cfg.JoinMode == JoinTrimmed {
		mt.trimIncompleteMarkers()
	}
	return mt, nil
}

func (mt *MergedTable) trimIncompleteMarkers() {
	patients := map[string]bool{}
	seen := map[string]map[string]bool{}
	for _, r := range mt.Records {
		patients[r.PatientID] = true
		if seen[r.MarkerID] == nil {
			seen[r.MarkerID] = map[string]bool{}
		}
		seen[r.MarkerID][r.PatientID] = true
	}
	drop := map[string]bool{}
	for marker, pts := range seen {
		if len(pts) < len(patients) {
			drop[marker] = true
			mt.DroppedMarkers = append(mt.DroppedMarkers, marker)
		}
	}
	if len(drop) == 0 {
		return
	}
	sort.Strings(mt.DroppedMarkers)
	kept := make([]MergedRecord, 0, len(mt.Records))
	for _, r := range mt.Records {
		if drop[r.MarkerID] {
			mt.DroppedMarkerReadings++
			continue
		}
		kept = append(kept, r)
	}
	mt.Records = kept
	log.WithFields(log.Fields{
		"markers":  len(mt.DroppedMarkers),
		"readings": mt.DroppedMarkerReadings,
	}).Warnf("trimmed markers not observed for all %d patients: %q", len(patients), mt.DroppedMarkers)
}

func (mt *MergedTable) WriteCSV(w io.Writer) error {
	header := append([]string{colPatientID, colMarkerID, colReplicate, colValue, colLabel}, mt.ClinicalColumns...)
	return writeCSV(w, header, func(emit func([]string) error) error {
		row := make([]string, len(header))
		for _, r := range mt.Records {
			row[0] = r.PatientID
			row[1] = r.MarkerID
			row[2] = strconv.Itoa(r.Replicate)
			row[3] = formatValue(r.Value)
			row[4] = r.Label
			copy(row[5:], r.Fields)
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// ParseMerged reads a table written by (*MergedTable)WriteCSV.
func ParseMerged(name string, r io.Reader) (*MergedTable, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	idx, err := t.require(colPatientID, colMarkerID, colReplicate, colValue, colLabel)
	if err != nil {
		return nil, err
	}
	mt := &MergedTable{}
	var auxCols []int
	for i, col := range t.header {
		if i != idx[0] && i != idx[1] && i != idx[2] && i != idx[3] && i != idx[4] {
			auxCols = append(auxCols, i)
			mt.ClinicalColumns = append(mt.ClinicalColumns, col)
		}
	}
	// Patients share one Fields slice, as they do after Merge.
	fields := map[string][]string{}
	for i, row := range t.rows {
		if len(row) != len(t.header) {
			return nil, schemaErrorf(name, "line %d has %d fields, header has %d", t.line(i), len(row), len(t.header))
		}
		rd, err := parseReading(row, idx)
		if err != nil {
			return nil, schemaErrorf(name, "line %d: %s", t.line(i), err)
		}
		f, ok := fields[rd.PatientID]
		if !ok {
			f = make([]string, len(auxCols))
			for j, col := range auxCols {
				f[j] = row[col]
			}
			fields[rd.PatientID] = f
		}
		mt.Records = append(mt.Records, MergedRecord{
			MethylationReading: rd,
			Label:              strings.TrimSpace(row[idx[4]]),
			Fields:             f,
		})
	}
	return mt, nil
}

type mergeCmd struct{}

func (cmd *mergeCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *mergeCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	clinicalFilename := flags.String("clinical", "", "clinical `file` (csv, optionally gzipped)")
	methylationFilename := flags.String("methylation", "", "long-format methylation `file` (csv, optionally gzipped)")
	outputFilename := flags.String("o", "-", "output `file`")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	if *clinicalFilename == "" || *methylationFilename == "" {
		return usageError{fmt.Errorf("must provide both -clinical and -methylation")}
	}
	clinical, err := ReadClinical(*clinicalFilename, cfg)
	if err != nil {
		return err
	}
	readings, err := ReadMethylation(*methylationFilename)
	if err != nil {
		return err
	}
	merged, err := Merge(clinical, readings, cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(*outputFilename, stdout, merged.WriteCSV)
}
