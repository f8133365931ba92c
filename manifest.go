// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const manifestFilename = "manifest.json"

// Manifest records what a pipeline run read and wrote.
type Manifest struct {
	RunID    string         `json:"run_id"`
	Cohort   string         `json:"cohort,omitempty"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Config   Config         `json:"config"`
	Inputs   []ManifestFile `json:"inputs"`
	Outputs  []ManifestFile `json:"outputs"`
	Markers  int            `json:"ranked_markers"`
	Excluded []string       `json:"excluded_markers,omitempty"`
}

// ManifestFile identifies one file by path and blake2b-256 digest.
type ManifestFile struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Blake2b string `json:"blake2b"`
}

func newManifest(cohort string, cfg Config) *Manifest {
	return &Manifest{
		RunID:   uuid.NewString(),
		Cohort:  cohort,
		Started: time.Now().UTC(),
		Config:  cfg,
	}
}

func digestFile(fnm string) (ManifestFile, error) {
	f, err := os.Open(fnm)
	if err != nil {
		return ManifestFile{}, err
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return ManifestFile{}, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("digest %s: %w", fnm, err)
	}
	return ManifestFile{Path: fnm, Size: n, Blake2b: fmt.Sprintf("%x", h.Sum(nil))}, nil
}

func (m *Manifest) addInput(fnm string) error {
	mf, err := digestFile(fnm)
	if err != nil {
		return err
	}
	m.Inputs = append(m.Inputs, mf)
	return nil
}

// addOutput records fnm by its path relative to dir.
func (m *Manifest) addOutput(dir, fnm string) error {
	mf, err := digestFile(fnm)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(dir, fnm); err == nil {
		mf.Path = rel
	}
	m.Outputs = append(m.Outputs, mf)
	return nil
}

// Write stores the manifest as dir/manifest.json.
func (m *Manifest) Write(dir string) error {
	m.Finished = time.Now().UTC()
	return writeFileAtomic(filepath.Join(dir, manifestFilename), nil, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// readManifest loads dir/manifest.json.
func readManifest(dir string) (*Manifest, error) {
	buf, err := os.ReadFile(filepath.Join(dir, manifestFilename))
	if err != nil {
		return nil, err
	}
	var m Manifest
	err = json.Unmarshal(buf, &m)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestFilename, err)
	}
	return &m, nil
}
