// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"bytes"
	"errors"
	"strings"

	"gopkg.in/check.v1"
)

type mergeSuite struct{}

var _ = check.Suite(&mergeSuite{})

func mustParseClinical(c *check.C, text string, cfg Config) *ClinicalTable {
	ct, err := ParseClinical("clinical", strings.NewReader(text), cfg)
	c.Assert(err, check.IsNil)
	return ct
}

func mustParseMethylation(c *check.C, text string) []MethylationReading {
	readings, err := ParseMethylation("methylation", strings.NewReader(text))
	c.Assert(err, check.IsNil)
	return readings
}

func (s *mergeSuite) TestMerge(c *check.C) {
	cfg := DefaultConfig()
	mt, err := Merge(mustParseClinical(c, testClinical, cfg), mustParseMethylation(c, testMethylation), cfg)
	c.Assert(err, check.IsNil)
	c.Check(mt.Records, check.HasLen, 18)
	c.Check(mt.ClinicalColumns, check.DeepEquals, []string{"age"})
	c.Check(mt.Records[0].PatientID, check.Equals, "P1")
	c.Check(mt.Records[0].Label, check.Equals, "A")
	c.Check(mt.Records[0].Fields, check.DeepEquals, []string{"54"})
	c.Check(mt.Records[17].Label, check.Equals, "B")

	// every (patient, marker) group has the configured cardinality
	groups := map[groupKey]int{}
	for _, r := range mt.Records {
		groups[groupKey{r.PatientID, r.MarkerID}]++
	}
	c.Check(groups, check.HasLen, 6)
	for k, n := range groups {
		c.Check(n, check.Equals, cfg.ReplicateCount, check.Commentf("%v", k))
	}
}

func (s *mergeSuite) TestDroppedReadings(c *check.C) {
	cfg := DefaultConfig()
	methylation := testMethylation + "p9,m1,1,3\np9,m1,2,3\nq7,m1,1,4\n"
	mt, err := Merge(mustParseClinical(c, testClinical, cfg), mustParseMethylation(c, methylation), cfg)
	c.Assert(err, check.IsNil)
	c.Check(mt.Records, check.HasLen, 18)
	c.Check(mt.DroppedReadings, check.Equals, 3)
	c.Check(mt.DroppedPatients, check.DeepEquals, []string{"P9", "Q7"})
}

func (s *mergeSuite) TestNormalizeIDs(c *check.C) {
	cfg := DefaultConfig()
	clinical := mustParseClinical(c, "patient_id,label\n  ab1 ,X\n", cfg)
	readings := mustParseMethylation(c, "patient_id,marker_id,replicate_index,value\nAB1,m,1,2\n")
	mt, err := Merge(clinical, readings, cfg)
	c.Assert(err, check.IsNil)
	c.Check(mt.Records, check.HasLen, 1)

	cfg.NormalizeIDs = false
	mt, err = Merge(clinical, readings, cfg)
	c.Assert(err, check.IsNil)
	c.Check(mt.Records, check.HasLen, 0)
	c.Check(mt.DroppedReadings, check.Equals, 1)
}

func (s *mergeSuite) TestDuplicatePatient(c *check.C) {
	cfg := DefaultConfig()
	clinical := mustParseClinical(c, "patient_id,label\np1,A\nP1,B\n", cfg)
	_, err := Merge(clinical, nil, cfg)
	var serr *SchemaError
	c.Check(errors.As(err, &serr), check.Equals, true, check.Commentf("%v", err))
	c.Check(err, check.ErrorMatches, `SchemaError: clinical: duplicate patient id .*`)
}

func (s *mergeSuite) TestMissingColumns(c *check.C) {
	cfg := DefaultConfig()
	_, err := ParseClinical("clinical.csv", strings.NewReader("patient_id,tissue\np1,A\n"), cfg)
	c.Check(err, check.ErrorMatches, `SchemaError: clinical.csv: missing required columns \["label"\]`)

	cfg.LabelColumn = "tissue"
	_, err = ParseClinical("clinical.csv", strings.NewReader("patient_id,tissue\np1,A\n"), cfg)
	c.Check(err, check.IsNil)

	_, err = ParseMethylation("m.csv", strings.NewReader("patient_id,marker_id,value\np1,m1,3\n"))
	c.Check(err, check.ErrorMatches, `SchemaError: m.csv: missing required columns \["replicate_index"\]`)

	_, err = ParseMethylation("m.csv", strings.NewReader(""))
	c.Check(err, check.ErrorMatches, `SchemaError: m.csv: empty table.*`)

	_, err = ParseMethylation("m.csv", strings.NewReader("patient_id,marker_id,replicate_index,value\np1,m1,x,3\n"))
	c.Check(err, check.ErrorMatches, `SchemaError: m.csv: line 2: replicate_index: .*`)

	_, err = ParseMethylation("m.csv", strings.NewReader("patient_id,marker_id,replicate_index,value\np1,m1,1,NA\n"))
	c.Check(err, check.ErrorMatches, `SchemaError: m.csv: line 2: missing value .*`)
}

func (s *mergeSuite) TestReservedClinicalColumns(c *check.C) {
	cfg := DefaultConfig()
	cfg.LabelColumn = "tissue"
	clinical := mustParseClinical(c, "\ufeffpatient_id,tissue,value,sex\np1,A,99,F\n", cfg)
	c.Check(clinical.Columns, check.DeepEquals, []string{"sex"})
	c.Check(clinical.Records[0].Fields, check.DeepEquals, []string{"F"})
}

func (s *mergeSuite) TestTrimmed(c *check.C) {
	cfg := DefaultConfig()
	cfg.JoinMode = JoinTrimmed
	// m3 is only measured for p1
	methylation := testMethylation + "p1,m3,1,1\np1,m3,2,2\np1,m3,3,3\n"
	mt, err := Merge(mustParseClinical(c, testClinical, cfg), mustParseMethylation(c, methylation), cfg)
	c.Assert(err, check.IsNil)
	c.Check(mt.Records, check.HasLen, 18)
	c.Check(mt.DroppedMarkers, check.DeepEquals, []string{"m3"})
	c.Check(mt.DroppedMarkerReadings, check.Equals, 3)

	cfg.JoinMode = JoinInner
	mt, err = Merge(mustParseClinical(c, testClinical, cfg), mustParseMethylation(c, methylation), cfg)
	c.Assert(err, check.IsNil)
	c.Check(mt.Records, check.HasLen, 21)
}

func (s *mergeSuite) TestMergedRoundTrip(c *check.C) {
	cfg := DefaultConfig()
	mt, err := Merge(mustParseClinical(c, testClinical, cfg), mustParseMethylation(c, testMethylation), cfg)
	c.Assert(err, check.IsNil)
	var buf bytes.Buffer
	c.Assert(mt.WriteCSV(&buf), check.IsNil)
	mt2, err := ParseMerged("merged", bytes.NewReader(buf.Bytes()))
	c.Assert(err, check.IsNil)
	c.Check(mt2.ClinicalColumns, check.DeepEquals, mt.ClinicalColumns)
	c.Check(mt2.Records, check.DeepEquals, mt.Records)
}
