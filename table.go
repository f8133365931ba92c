// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// nullValue is written for undefined or missing numeric values.
const nullValue = "NA"

// zopen returns a reader for the given file, transparently
// decompressing the input if fnm ends with ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := os.Open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{rdr, f}, nil
}

// gzipr wraps a ReadCloser and a Closer, presenting a single Close()
// method that closes both wrapped objects.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// csvTable is a parsed CSV file: a header row plus data rows, all
// with the same number of fields.
type csvTable struct {
	name   string
	header []string
	rows   [][]string
	index  map[string]int
}

func readCSV(name string, r io.Reader) (*csvTable, error) {
	rdr := csv.NewReader(bufio.NewReader(r))
	rdr.ReuseRecord = false
	header, err := rdr.Read()
	if err == io.EOF {
		return nil, schemaErrorf(name, "empty table: header row required")
	} else if err != nil {
		return nil, schemaErrorf(name, "malformed header: %s", err)
	}
	t := &csvTable{name: name, index: make(map[string]int, len(header))}
	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if col == "" {
			return nil, schemaErrorf(name, "header column %d is empty", i+1)
		}
		if _, dup := t.index[col]; dup {
			return nil, schemaErrorf(name, "duplicate column %q", col)
		}
		t.index[col] = i
		t.header = append(t.header, col)
	}
	for {
		row, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, schemaErrorf(name, "malformed row: %s", err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// require returns the column indices of the named columns, or a
// SchemaError listing the ones that are absent.
func (t *csvTable) require(cols ...string) ([]int, error) {
	idx := make([]int, len(cols))
	var missing []string
	for i, col := range cols {
		j, ok := t.index[col]
		if !ok {
			missing = append(missing, col)
		}
		idx[i] = j
	}
	if len(missing) > 0 {
		return nil, schemaErrorf(t.name, "missing required columns %q", missing)
	}
	return idx, nil
}

// line returns the 1-based file line number of data row i.
func (t *csvTable) line(i int) int {
	return i + 2
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == nullValue || s == "NaN" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatValue(x float64) string {
	if math.IsNaN(x) {
		return nullValue
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// writeFileAtomic writes a complete file via fnm+"~" and renames it
// into place only if write succeeds, so readers never see a partial
// output file. If fnm is "-", the output goes to stdout.
func writeFileAtomic(fnm string, stdout io.Writer, write func(io.Writer) error) error {
	if fnm == "-" {
		bufw := bufio.NewWriter(stdout)
		err := write(bufw)
		if err != nil {
			return err
		}
		return bufw.Flush()
	}
	if dir := filepath.Dir(fnm); dir != "" {
		err := os.MkdirAll(dir, 0777)
		if err != nil {
			return err
		}
	}
	tmp := fnm + "~"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	defer f.Close()
	bufw := bufio.NewWriterSize(f, 1<<20)
	err = write(bufw)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	err = os.Rename(tmp, fnm)
	if err != nil {
		return err
	}
	log.WithField("filename", fnm).Info("wrote output")
	return nil
}

// writeCSV writes header and rows, flushing the csv writer before
// returning.
func writeCSV(w io.Writer, header []string, rows func(emit func([]string) error) error) error {
	cw := csv.NewWriter(w)
	err := cw.Write(header)
	if err != nil {
		return err
	}
	err = rows(cw.Write)
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
