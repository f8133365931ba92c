// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"fmt"
	"strings"
)

// SchemaError reports missing, duplicate or malformed columns or
// keys in an input table.
type SchemaError struct {
	Table  string
	Detail string
}

func (e *SchemaError) Error() string {
	if e.Table == "" {
		return "SchemaError: " + e.Detail
	}
	return fmt.Sprintf("SchemaError: %s: %s", e.Table, e.Detail)
}

func schemaErrorf(table, format string, args ...interface{}) error {
	return &SchemaError{Table: table, Detail: fmt.Sprintf(format, args...)}
}

// ReplicateCountError reports a (patient, marker) group whose
// replicate multiplicity differs from the configured replicate count.
type ReplicateCountError struct {
	PatientID string
	MarkerID  string
	Got       int
	Want      int
	Detail    string
}

func (e *ReplicateCountError) Error() string {
	msg := fmt.Sprintf("ReplicateCountError: patient %q marker %q has %d replicates, want %d", e.PatientID, e.MarkerID, e.Got, e.Want)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// NumericDomainError reports a value outside the domain of a
// transform, e.g., the log of a non-positive intensity.
type NumericDomainError struct {
	PatientID string
	MarkerID  string
	Value     float64
	Detail    string
}

func (e *NumericDomainError) Error() string {
	return fmt.Sprintf("NumericDomainError: patient %q marker %q: %s (value %g)", e.PatientID, e.MarkerID, e.Detail, e.Value)
}

// InsufficientClassesError is returned when the label column has
// fewer than two distinct values.
type InsufficientClassesError struct {
	Classes []string
}

func (e *InsufficientClassesError) Error() string {
	return fmt.Sprintf("InsufficientClassesError: need at least 2 distinct labels, found %d %q", len(e.Classes), strings.Join(e.Classes, ","))
}

// ConvergenceError is returned when a model fit fails under the
// configured regularization.
type ConvergenceError struct {
	Method string
	Detail string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("ConvergenceError: %s: %s", e.Method, e.Detail)
}

var errorKinds = map[string]bool{
	"SchemaError":              true,
	"ReplicateCountError":      true,
	"NumericDomainError":       true,
	"InsufficientClassesError": true,
	"ConvergenceError":         true,
}

// withContext annotates err with where it happened. The context
// goes after the error kind, so "ConvergenceError: ..." wrapped in
// cohort "x" prints as "ConvergenceError: cohort x: ...".
func withContext(err error, format string, args ...interface{}) error {
	return &contextError{context: fmt.Sprintf(format, args...), err: err}
}

type contextError struct {
	context string
	err     error
}

func (e *contextError) Error() string {
	msg := e.err.Error()
	kind, rest, ok := strings.Cut(msg, ": ")
	if !ok || !errorKinds[kind] {
		return e.context + ": " + msg
	}
	if strings.HasPrefix(rest, e.context+": ") {
		return msg
	}
	return kind + ": " + e.context + ": " + rest
}

func (e *contextError) Unwrap() error {
	return e.err
}
