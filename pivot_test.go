// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"bytes"
	"math"
	"strings"

	"gopkg.in/check.v1"
)

type pivotSuite struct{}

var _ = check.Suite(&pivotSuite{})

func condensedTable(recs ...CondensedRecord) *CondensedTable {
	return &CondensedTable{Records: recs}
}

func (s *pivotSuite) TestMissingMarkers(c *check.C) {
	ct := condensedTable(
		CondensedRecord{PatientID: "p2", MarkerID: "mB", LogMean: 1, LogSD: 0.1, LogCV: 0.1, Label: "X"},
		CondensedRecord{PatientID: "p1", MarkerID: "mA", LogMean: 2, LogSD: 0.2, LogCV: 0.1, Label: "Y"},
		CondensedRecord{PatientID: "p1", MarkerID: "mB", LogMean: 3, LogSD: 0.3, LogCV: 0.1, Label: "Y"},
	)
	wt, err := Pivot(ct, DefaultConfig())
	c.Assert(err, check.IsNil)
	c.Check(wt.Markers, check.DeepEquals, []string{"mA", "mB"})
	c.Check(wt.Columns(), check.DeepEquals, []string{
		"mA_log_mean", "mA_log_sd", "mA_log_cv",
		"mB_log_mean", "mB_log_sd", "mB_log_cv",
	})
	c.Assert(wt.Rows, check.HasLen, 2)
	for _, r := range wt.Rows {
		c.Check(r.Values, check.HasLen, 6)
	}
	c.Check(wt.Rows[0].PatientID, check.Equals, "p1")
	c.Check(wt.Rows[0].Label, check.Equals, "Y")
	c.Check(wt.value(0, "mB", StatLogSD), check.Equals, 0.3)
	c.Check(wt.Rows[1].Label, check.Equals, "X")
	c.Check(math.IsNaN(wt.value(1, "mA", StatLogMean)), check.Equals, true)
	c.Check(wt.value(1, "mB", StatLogMean), check.Equals, 1.0)
	c.Check(math.IsNaN(wt.value(1, "nonexistent", StatLogMean)), check.Equals, true)

	var buf bytes.Buffer
	c.Assert(wt.WriteCSV(&buf), check.IsNil)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	c.Check(lines, check.DeepEquals, []string{
		"patient_id,label,mA_log_mean,mA_log_sd,mA_log_cv,mB_log_mean,mB_log_sd,mB_log_cv",
		"p1,Y,2,0.2,0.1,3,0.3,0.1",
		"p2,X,NA,NA,NA,1,0.1,0.1",
	})

	wt2, err := ParseWide("wide", bytes.NewReader(buf.Bytes()))
	c.Assert(err, check.IsNil)
	c.Check(wt2.Markers, check.DeepEquals, wt.Markers)
	c.Check(wt2.Stats, check.DeepEquals, wt.Stats)
	var buf2 bytes.Buffer
	c.Assert(wt2.WriteCSV(&buf2), check.IsNil)
	c.Check(buf2.String(), check.Equals, buf.String())
}

func (s *pivotSuite) TestSelectedStats(c *check.C) {
	cfg := DefaultConfig()
	cfg.WideStats = []string{StatLogSD}
	wt, err := Pivot(condensedTable(CondensedRecord{PatientID: "p1", MarkerID: "m", LogMean: 2, LogSD: 0.5, Label: "Y"}), cfg)
	c.Assert(err, check.IsNil)
	c.Check(wt.Columns(), check.DeepEquals, []string{"m_log_sd"})
	c.Check(wt.Rows[0].Values, check.DeepEquals, []float64{0.5})
}

func (s *pivotSuite) TestDuplicatePair(c *check.C) {
	ct := condensedTable(
		CondensedRecord{PatientID: "p1", MarkerID: "m", Label: "Y"},
		CondensedRecord{PatientID: "p1", MarkerID: "m", Label: "Y"},
	)
	_, err := Pivot(ct, DefaultConfig())
	c.Check(err, check.ErrorMatches, `SchemaError: condensed: duplicate record for patient "p1" marker "m"`)
}

func (s *pivotSuite) TestConflictingLabels(c *check.C) {
	ct := condensedTable(
		CondensedRecord{PatientID: "p1", MarkerID: "m1", Label: "Y"},
		CondensedRecord{PatientID: "p1", MarkerID: "m2", Label: "Z"},
	)
	_, err := Pivot(ct, DefaultConfig())
	c.Check(err, check.ErrorMatches, `SchemaError: condensed: patient "p1" has conflicting labels .*`)
}

func (s *pivotSuite) TestParseWideErrors(c *check.C) {
	_, err := ParseWide("w", strings.NewReader("patient_id,label,m1_log_mean,m2_log_sd\np1,A,1,2\n"))
	c.Check(err, check.ErrorMatches, `SchemaError: w: 2 feature columns do not form a 2 marker x 2 statistic grid`)
	_, err = ParseWide("w", strings.NewReader("patient_id,label,m1_mean\np1,A,1\n"))
	c.Check(err, check.ErrorMatches, `SchemaError: w: column "m1_mean" is not <marker_id>_<statistic>`)
	_, err = ParseWide("w", strings.NewReader("patient_id,label,m1_log_mean\np1,A,1\np1,B,2\n"))
	c.Check(err, check.ErrorMatches, `SchemaError: w: line 3: duplicate patient "p1"`)
}

func (s *pivotSuite) TestCompleteMatrix(c *check.C) {
	wt, err := ParseWide("w", strings.NewReader("patient_id,label,m2_log_mean,m1_log_mean,m3_log_mean\np1,A,1,2,NA\np2,B,3,4,5\n"))
	c.Assert(err, check.IsNil)
	markers, x, excluded, err := wt.CompleteMatrix(StatLogMean)
	c.Assert(err, check.IsNil)
	c.Check(markers, check.DeepEquals, []string{"m1", "m2"})
	c.Check(excluded, check.DeepEquals, []string{"m3"})
	c.Check(x.RawMatrix().Data, check.DeepEquals, []float64{2, 1, 4, 3})

	_, _, _, err = wt.CompleteMatrix(StatLogSD)
	c.Check(err, check.ErrorMatches, `SchemaError: wide: no log_sd columns .*`)
}
