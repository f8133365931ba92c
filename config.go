// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Join modes.
const (
	JoinInner   = "inner"
	JoinTrimmed = "trimmed"
)

// Consensus rules.
const (
	ConsensusRankMean    = "rank-mean"
	ConsensusScoreMinMax = "score-minmax"
)

// Condensed statistics, in output order.
const (
	StatLogMean = "log_mean"
	StatLogSD   = "log_sd"
	StatLogCV   = "log_cv"
)

var knownStats = []string{StatLogMean, StatLogSD, StatLogCV}

// Config carries every tunable of the pipeline. Each stage receives
// it explicitly.
type Config struct {
	ReplicateCount int      `yaml:"replicate_count" json:"replicate_count"`
	LogBase        string   `yaml:"log_base" json:"log_base"`
	JoinMode       string   `yaml:"join_mode" json:"join_mode"`
	Seed           int64    `yaml:"seed" json:"seed"`
	TopK           int      `yaml:"top_k" json:"top_k"`
	OutputDir      string   `yaml:"output_dir" json:"output_dir"`
	IDColumn       string   `yaml:"id_column" json:"id_column"`
	LabelColumn    string   `yaml:"label_column" json:"label_column"`
	NormalizeIDs   bool     `yaml:"normalize_ids" json:"normalize_ids"`
	WideStats      []string `yaml:"wide_stats" json:"wide_stats"`
	RankStat       string   `yaml:"rank_stat" json:"rank_stat"`
	CVEpsilon      float64  `yaml:"cv_epsilon" json:"cv_epsilon"`
	Trees          int      `yaml:"trees" json:"trees"`
	MaxDepth       int      `yaml:"max_depth" json:"max_depth"`
	LogRegL2       float64  `yaml:"logreg_l2" json:"logreg_l2"`
	Consensus      string   `yaml:"consensus" json:"consensus"`
	Plot           bool     `yaml:"plot" json:"plot"`
	Threads        int      `yaml:"threads" json:"threads"`
}

func DefaultConfig() Config {
	return Config{
		ReplicateCount: 3,
		LogBase:        "e",
		JoinMode:       JoinInner,
		Seed:           999,
		TopK:           20,
		OutputDir:      "./out",
		IDColumn:       "patient_id",
		LabelColumn:    "label",
		NormalizeIDs:   true,
		WideStats:      []string{StatLogMean, StatLogSD, StatLogCV},
		RankStat:       StatLogMean,
		CVEpsilon:      1e-9,
		Trees:          200,
		MaxDepth:       10,
		LogRegL2:       0.1,
		Consensus:      ConsensusRankMean,
		Threads:        runtime.GOMAXPROCS(0),
	}
}

type listValue struct{ list *[]string }

func (v listValue) String() string {
	if v.list == nil {
		return ""
	}
	return strings.Join(*v.list, ",")
}

func (v listValue) Set(s string) error {
	*v.list = nil
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*v.list = append(*v.list, item)
		}
	}
	return nil
}

// Flags registers command line flags that write directly into cfg.
func (cfg *Config) Flags(flags *flag.FlagSet) {
	flags.IntVar(&cfg.ReplicateCount, "replicates", cfg.ReplicateCount, "number of technical replicates per patient and marker")
	flags.StringVar(&cfg.LogBase, "log-base", cfg.LogBase, "log transform `base` (e, 10, or 2)")
	flags.StringVar(&cfg.JoinMode, "join", cfg.JoinMode, "join `mode`: inner, or trimmed (also drop markers not observed for every patient)")
	flags.Int64Var(&cfg.Seed, "random-seed", cfg.Seed, "PRNG seed for the random forest")
	flags.IntVar(&cfg.TopK, "top-k", cfg.TopK, "number of top markers to report and plot")
	flags.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "output `directory`")
	flags.StringVar(&cfg.IDColumn, "id-column", cfg.IDColumn, "patient id column `name` in the clinical table")
	flags.StringVar(&cfg.LabelColumn, "label-column", cfg.LabelColumn, "tissue-of-origin label column `name` in the clinical table")
	flags.BoolVar(&cfg.NormalizeIDs, "normalize-ids", cfg.NormalizeIDs, "trim and upper-case patient ids before joining")
	flags.Var(listValue{&cfg.WideStats}, "wide-stats", "comma-separated `statistics` to pivot into the wide table")
	flags.StringVar(&cfg.RankStat, "rank-stat", cfg.RankStat, "`statistic` used as the per-marker feature when ranking")
	flags.Float64Var(&cfg.CVEpsilon, "cv-epsilon", cfg.CVEpsilon, "log_cv is undefined when |log_mean| is below this")
	flags.IntVar(&cfg.Trees, "trees", cfg.Trees, "number of trees in the random forest")
	flags.IntVar(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "maximum tree depth")
	flags.Float64Var(&cfg.LogRegL2, "logreg-l2", cfg.LogRegL2, "L2 penalty weight for logistic regression")
	flags.StringVar(&cfg.Consensus, "consensus", cfg.Consensus, "consensus `rule`: rank-mean or score-minmax")
	flags.BoolVar(&cfg.Plot, "plot", cfg.Plot, "render a plot of the top markers")
	flags.IntVar(&cfg.Threads, "threads", cfg.Threads, "number of concurrent workers")
}

// ApplyFile loads YAML settings from fnm into cfg, then re-applies
// any flags that were set explicitly on the command line so they
// take precedence over the file.
func (cfg *Config) ApplyFile(fnm string, flags *flag.FlagSet) error {
	explicit := map[string]string{}
	if flags != nil {
		flags.Visit(func(f *flag.Flag) {
			if f.Name != "config" {
				explicit[f.Name] = f.Value.String()
			}
		})
	}
	buf, err := os.ReadFile(fnm)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	err = yaml.Unmarshal(buf, cfg)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", fnm, err)
	}
	for name, val := range explicit {
		err = flags.Set(name, val)
		if err != nil {
			return fmt.Errorf("flag -%s: %w", name, err)
		}
	}
	return nil
}

func (cfg Config) Validate() error {
	if cfg.ReplicateCount < 2 {
		return fmt.Errorf("invalid replicate count %d: need at least 2 for a sample standard deviation", cfg.ReplicateCount)
	}
	if _, err := cfg.logFunc(); err != nil {
		return err
	}
	if cfg.JoinMode != JoinInner && cfg.JoinMode != JoinTrimmed {
		return fmt.Errorf("invalid join mode %q", cfg.JoinMode)
	}
	if len(cfg.WideStats) == 0 {
		return fmt.Errorf("no wide statistics configured")
	}
	for _, stat := range cfg.WideStats {
		if statIndex(stat) < 0 {
			return fmt.Errorf("unknown statistic %q", stat)
		}
	}
	if statIndex(cfg.RankStat) < 0 {
		return fmt.Errorf("unknown rank statistic %q", cfg.RankStat)
	}
	if cfg.Consensus != ConsensusRankMean && cfg.Consensus != ConsensusScoreMinMax {
		return fmt.Errorf("invalid consensus rule %q", cfg.Consensus)
	}
	if cfg.Trees < 1 || cfg.MaxDepth < 1 {
		return fmt.Errorf("invalid forest size: %d trees, depth %d", cfg.Trees, cfg.MaxDepth)
	}
	if cfg.LogRegL2 < 0 {
		return fmt.Errorf("invalid logistic regression penalty %g", cfg.LogRegL2)
	}
	return nil
}

func (cfg Config) logFunc() (func(float64) float64, error) {
	switch cfg.LogBase {
	case "e", "":
		return math.Log, nil
	case "10":
		return math.Log10, nil
	case "2":
		return math.Log2, nil
	default:
		return nil, fmt.Errorf("invalid log base %q", cfg.LogBase)
	}
}

func (cfg Config) threads() int {
	if cfg.Threads < 1 {
		return 1
	}
	return cfg.Threads
}

func statIndex(stat string) int {
	for i, s := range knownStats {
		if s == stat {
			return i
		}
	}
	return -1
}
