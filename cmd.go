// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"git.arvados.org/arvados.git/lib/cmd"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"merge":        &mergeCmd{},
		"condense":     &condenseCmd{},
		"pivot":        &pivotCmd{},
		"rank":         &rankCmd{},
		"run":          &runCmd{},
		"run-cohorts":  &runCohortsCmd{},
		"export-numpy": &exportNumpy{},
		"pca":          &pcaCmd{},
	})
)

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.StandardLogger().Formatter = &log.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// usageError reports bad command line arguments.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// exitCode reports err on stderr and returns the process exit code:
// 0 on success or -help, 2 for usage errors, 1 for anything else.
func exitCode(err error, stderr io.Writer) int {
	var uerr usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &uerr):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		fmt.Fprintln(stderr, err)
		return 1
	}
}

// parseFlags adds the shared -config, -pprof and pipeline flags to
// flags, parses args, and returns the resulting configuration.
// Settings given on the command line override the config file.
func parseFlags(flags *flag.FlagSet, args []string) (Config, error) {
	cfg := DefaultConfig()
	configFile := flags.String("config", "", "load settings from YAML `file`")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	cfg.Flags(flags)
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return cfg, err
	} else if err != nil {
		return cfg, usageError{err}
	} else if flags.NArg() > 0 {
		return cfg, usageError{fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())}
	}
	if *configFile != "" {
		err = cfg.ApplyFile(*configFile, flags)
		if err != nil {
			return cfg, usageError{err}
		}
	}
	err = cfg.Validate()
	if err != nil {
		return cfg, usageError{err}
	}
	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}
	return cfg, nil
}

// openInput opens fnm for reading, or returns stdin if fnm is "-".
// The returned name identifies the input in error messages.
func openInput(fnm string, stdin io.Reader) (io.ReadCloser, string, error) {
	if fnm == "-" || fnm == "" {
		return io.NopCloser(stdin), "stdin", nil
	}
	f, err := zopen(fnm)
	if err != nil {
		return nil, fnm, err
	}
	return f, fnm, nil
}
