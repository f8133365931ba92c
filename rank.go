// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"flag"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Scoring method names, also used as output column names.
const (
	MethodANOVA  = "anova_f"
	MethodForest = "rf_importance"
	MethodLogReg = "logreg_coef"
)

// Dataset is the numeric view of a wide table used by the scorers:
// one row per patient, one column per marker.
type Dataset struct {
	Markers []string
	X       *mat.Dense
	// Y[i] is an index into Classes.
	Y       []int
	Classes []string
}

// MethodScores are one method's per-marker scores, aligned with
// Dataset.Markers. Higher is more important.
type MethodScores struct {
	Method  string
	Values  []float64
	PValues []float64
}

// A Scorer scores every marker of a dataset independently of the
// other scorers.
type Scorer interface {
	Method() string
	Score(ds *Dataset, cfg Config) (MethodScores, error)
}

// FeatureScore is the outcome of ranking for one marker.
type FeatureScore struct {
	MarkerID string
	// Scores and Ranks are keyed by method name. Ranks are
	// 1-based, ties share the average position.
	Scores map[string]float64
	Ranks  map[string]float64
	// ANOVA p-value, NaN if not computed.
	ANOVAP float64
	// Consensus value (lower is better) and 1-based position.
	Consensus     float64
	ConsensusRank int
}

func (fs FeatureScore) score(method string) float64 {
	if v, ok := fs.Scores[method]; ok {
		return v
	}
	return math.NaN()
}

func (fs FeatureScore) ANOVAF() float64       { return fs.score(MethodANOVA) }
func (fs FeatureScore) RFImportance() float64 { return fs.score(MethodForest) }
func (fs FeatureScore) LogRegCoef() float64   { return fs.score(MethodLogReg) }

// Ranking is the FeatureRanker output, sorted by ConsensusRank.
type Ranking struct {
	Methods []string
	Scores  []FeatureScore
	// Markers left out because some patient lacks a value for
	// them.
	Excluded []string
}

// Ranker runs its scorers concurrently and combines their rankings
// with Aggregator.
type Ranker struct {
	Scorers    []Scorer
	Aggregator Aggregator
}

// NewRanker returns a ranker with the ANOVA, random forest and
// logistic regression scorers and the consensus rule named in cfg.
func NewRanker(cfg Config) (*Ranker, error) {
	agg, err := newAggregator(cfg.Consensus)
	if err != nil {
		return nil, err
	}
	return &Ranker{
		Scorers:    []Scorer{anovaScorer{}, forestScorer{}, logRegScorer{}},
		Aggregator: agg,
	}, nil
}

// Dataset builds the scoring view of wt using the cfg.RankStat
// column of each marker. Markers with a missing value for any
// patient are returned separately.
func (rk *Ranker) Dataset(wt *WideTable, cfg Config) (*Dataset, []string, error) {
	classIdx := map[string]int{}
	for _, r := range wt.Rows {
		classIdx[r.Label] = 0
	}
	classes := make([]string, 0, len(classIdx))
	for c := range classIdx {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	if len(classes) < 2 {
		return nil, nil, &InsufficientClassesError{Classes: classes}
	}
	for i, c := range classes {
		classIdx[c] = i
	}
	markers, x, excluded, err := wt.CompleteMatrix(cfg.RankStat)
	if err != nil {
		return nil, excluded, err
	}
	ds := &Dataset{
		Markers: markers,
		X:       x,
		Y:       make([]int, len(wt.Rows)),
		Classes: classes,
	}
	for i, r := range wt.Rows {
		ds.Y[i] = classIdx[r.Label]
	}
	return ds, excluded, nil
}

// Rank scores every complete marker of wt with each scorer and
// orders markers by consensus. It fails with InsufficientClassesError
// before any scorer runs if wt has fewer than two labels.
func (rk *Ranker) Rank(wt *WideTable, cfg Config) (*Ranking, error) {
	ds, excluded, err := rk.Dataset(wt, cfg)
	if err != nil {
		return nil, err
	}
	rows, cols := ds.X.Dims()
	log.Infof("ranking %d markers over %d samples in %d classes", cols, rows, len(ds.Classes))

	// Scorers share nothing but the read-only dataset. The
	// consensus step waits for all of them.
	results := make([]MethodScores, len(rk.Scorers))
	var wg WaitGroup
	for i, scorer := range rk.Scorers {
		i, scorer := i, scorer
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := scorer.Score(ds, cfg)
			if err != nil {
				wg.Error(withContext(err, "%s", scorer.Method()))
				return
			}
			if len(res.Values) != cols {
				wg.Error(fmt.Errorf("%s: returned %d scores for %d markers", scorer.Method(), len(res.Values), cols))
				return
			}
			res.Method = scorer.Method()
			results[i] = res
		}()
	}
	err = wg.Wait()
	if err != nil {
		return nil, err
	}

	values := make([][]float64, len(results))
	ranking := &Ranking{Excluded: excluded}
	for i, res := range results {
		values[i] = res.Values
		ranking.Methods = append(ranking.Methods, res.Method)
	}
	consensus := rk.Aggregator.Aggregate(values)
	ranks := make([][]float64, len(values))
	for i, v := range values {
		ranks[i] = fractionalRanks(v)
	}

	ranking.Scores = make([]FeatureScore, cols)
	for j, marker := range ds.Markers {
		fs := FeatureScore{
			MarkerID:  marker,
			Scores:    map[string]float64{},
			Ranks:     map[string]float64{},
			ANOVAP:    math.NaN(),
			Consensus: consensus[j],
		}
		for i, res := range results {
			fs.Scores[res.Method] = res.Values[j]
			fs.Ranks[res.Method] = ranks[i][j]
			if res.Method == MethodANOVA && res.PValues != nil {
				fs.ANOVAP = res.PValues[j]
			}
		}
		ranking.Scores[j] = fs
	}
	sort.SliceStable(ranking.Scores, func(a, b int) bool {
		sa, sb := ranking.Scores[a], ranking.Scores[b]
		if sa.Consensus != sb.Consensus {
			return sa.Consensus < sb.Consensus
		}
		return sa.MarkerID < sb.MarkerID
	})
	for i := range ranking.Scores {
		ranking.Scores[i].ConsensusRank = i + 1
	}
	ranking.logTop(cfg.TopK)
	return ranking, nil
}

func (rk *Ranking) logTop(k int) {
	if k <= 0 || k > len(rk.Scores) {
		k = len(rk.Scores)
	}
	for _, fs := range rk.Scores[:k] {
		log.WithFields(log.Fields{
			"rank":      fs.ConsensusRank,
			"anova_f":   fs.ANOVAF(),
			"anova_p":   fs.ANOVAP,
			"rf":        fs.RFImportance(),
			"logreg":    fs.LogRegCoef(),
			"consensus": fs.Consensus,
		}).Infof("top marker %s", fs.MarkerID)
	}
}

// WriteCSV writes marker_id, anova_f, rf_importance, logreg_coef,
// consensus_rank in consensus order.
func (rk *Ranking) WriteCSV(w io.Writer) error {
	header := []string{colMarkerID, MethodANOVA, MethodForest, MethodLogReg, "consensus_rank"}
	return writeCSV(w, header, func(emit func([]string) error) error {
		for _, fs := range rk.Scores {
			err := emit([]string{
				fs.MarkerID,
				formatValue(fs.ANOVAF()),
				formatValue(fs.RFImportance()),
				formatValue(fs.LogRegCoef()),
				strconv.Itoa(fs.ConsensusRank),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

type rankCmd struct{}

func (cmd *rankCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	return exitCode(err, stderr)
}

func (cmd *rankCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "wide input `file`")
	outputFilename := flags.String("o", "-", "output `file`")
	plotFilename := flags.String("plot-file", "", "plot output `file` (default: top_markers.png in -output-dir)")
	cfg, err := parseFlags(flags, args)
	if err != nil {
		return err
	}
	input, name, err := openInput(*inputFilename, stdin)
	if err != nil {
		return err
	}
	defer input.Close()
	wide, err := ParseWide(name, input)
	if err != nil {
		return err
	}
	ranker, err := NewRanker(cfg)
	if err != nil {
		return err
	}
	ranking, err := ranker.Rank(wide, cfg)
	if err != nil {
		return err
	}
	err = writeFileAtomic(*outputFilename, stdout, ranking.WriteCSV)
	if err != nil {
		return err
	}
	if cfg.Plot {
		fnm := *plotFilename
		if fnm == "" {
			fnm = filepath.Join(cfg.OutputDir, plotFilenameDefault)
		}
		if err := PlotTopMarkers(fnm, ranking, cfg.TopK); err != nil {
			log.WithError(err).Warn("plot failed; ranking output is unaffected")
		}
	}
	return nil
}
