// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"bytes"
	"errors"
	"flag"
	"os"

	"gopkg.in/check.v1"
)

type configSuite struct{}

var _ = check.Suite(&configSuite{})

func (s *configSuite) TestDefaults(c *check.C) {
	cfg := DefaultConfig()
	c.Check(cfg.Validate(), check.IsNil)
	c.Check(cfg.ReplicateCount, check.Equals, 3)
	c.Check(cfg.Seed, check.Equals, int64(999))
	c.Check(cfg.Consensus, check.Equals, ConsensusRankMean)
	c.Check(cfg.JoinMode, check.Equals, JoinInner)
}

func (s *configSuite) TestValidate(c *check.C) {
	for _, trial := range []struct {
		mutate func(*Config)
		err    string
	}{
		{func(cfg *Config) { cfg.ReplicateCount = 1 }, `invalid replicate count 1.*`},
		{func(cfg *Config) { cfg.LogBase = "3" }, `invalid log base "3"`},
		{func(cfg *Config) { cfg.JoinMode = "outer" }, `invalid join mode "outer"`},
		{func(cfg *Config) { cfg.WideStats = []string{"log_mean", "median"} }, `unknown statistic "median"`},
		{func(cfg *Config) { cfg.WideStats = nil }, `no wide statistics configured`},
		{func(cfg *Config) { cfg.RankStat = "x" }, `unknown rank statistic "x"`},
		{func(cfg *Config) { cfg.Consensus = "vote" }, `invalid consensus rule "vote"`},
		{func(cfg *Config) { cfg.Trees = 0 }, `invalid forest size.*`},
		{func(cfg *Config) { cfg.LogRegL2 = -1 }, `invalid logistic regression penalty -1`},
	} {
		cfg := DefaultConfig()
		trial.mutate(&cfg)
		c.Check(cfg.Validate(), check.ErrorMatches, trial.err)
	}
}

func (s *configSuite) TestFileAndFlags(c *check.C) {
	fnm := c.MkDir() + "/config.yaml"
	err := os.WriteFile(fnm, []byte(`
replicate_count: 4
log_base: "10"
join_mode: trimmed
seed: 7
wide_stats: [log_mean, log_cv]
trees: 25
`), 0666)
	c.Assert(err, check.IsNil)

	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(&bytes.Buffer{})
	cfg, err := parseFlags(flags, []string{"-config", fnm, "-trees", "300", "-top-k=5"})
	c.Assert(err, check.IsNil)
	c.Check(cfg.ReplicateCount, check.Equals, 4)
	c.Check(cfg.LogBase, check.Equals, "10")
	c.Check(cfg.JoinMode, check.Equals, JoinTrimmed)
	c.Check(cfg.Seed, check.Equals, int64(7))
	c.Check(cfg.WideStats, check.DeepEquals, []string{StatLogMean, StatLogCV})
	c.Check(cfg.Trees, check.Equals, 300)
	c.Check(cfg.TopK, check.Equals, 5)
	// untouched by either
	c.Check(cfg.MaxDepth, check.Equals, 10)
}

func (s *configSuite) TestParseFlagsErrors(c *check.C) {
	newFlags := func() *flag.FlagSet {
		flags := flag.NewFlagSet("", flag.ContinueOnError)
		flags.SetOutput(&bytes.Buffer{})
		return flags
	}
	_, err := parseFlags(newFlags(), []string{"-replicates", "1"})
	c.Check(errors.As(err, new(usageError)), check.Equals, true)
	_, err = parseFlags(newFlags(), []string{"-no-such-flag"})
	c.Check(errors.As(err, new(usageError)), check.Equals, true)
	_, err = parseFlags(newFlags(), []string{"extra"})
	c.Check(err, check.ErrorMatches, `errant command line arguments.*`)
	_, err = parseFlags(newFlags(), []string{"-config", c.MkDir() + "/missing.yaml"})
	c.Check(err, check.ErrorMatches, `read config: .*`)
	_, err = parseFlags(newFlags(), []string{"-help"})
	c.Check(err, check.Equals, flag.ErrHelp)
}

func (s *configSuite) TestExitCode(c *check.C) {
	var stderr bytes.Buffer
	c.Check(exitCode(nil, &stderr), check.Equals, 0)
	c.Check(exitCode(flag.ErrHelp, &stderr), check.Equals, 0)
	c.Check(stderr.Len(), check.Equals, 0)
	c.Check(exitCode(usageError{errors.New("bad flag")}, &stderr), check.Equals, 2)
	c.Check(exitCode(&SchemaError{Detail: "x"}, &stderr), check.Equals, 1)
	c.Check(stderr.String(), check.Equals, "bad flag\nSchemaError: x\n")
}
