package stats

import (
	"math"
	"path/filepath"

	mstats "github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"activelearn/internal/model"
)

// CurvePoint is the test accuracy of one round against its labeled count.
type CurvePoint struct {
	Labeled  int     `json:"labeled"`
	Last     float64 `json:"test_acc_last_epoch"`
	BestAcc  float64 `json:"test_acc_best_acc"`
	BestLoss float64 `json:"test_acc_best_loss"`
}

func BuildLearningCurve(rounds []model.RoundResult) []CurvePoint {
	points := make([]CurvePoint, 0, len(rounds))
	for _, r := range rounds {
		points = append(points, CurvePoint{
			Labeled:  r.LabeledCount,
			Last:     float64(r.TestAccLastEpoch),
			BestAcc:  float64(r.TestAccBestAcc),
			BestLoss: float64(r.TestAccBestLoss),
		})
	}
	return points
}

// RoundSummary aggregates the validation accuracy of one round's epochs.
type RoundSummary struct {
	Round      int          `json:"run_no"`
	Epochs     int          `json:"epochs"`
	MeanAcc    model.Metric `json:"mean_valid_accuracy"`
	MaxAcc     model.Metric `json:"max_valid_accuracy"`
	StdDevAcc  model.Metric `json:"stddev_valid_accuracy"`
	MeanCLoss  model.Metric `json:"mean_classification_loss_train"`
	TotalSkips int          `json:"skipped_steps"`
}

// SummarizeRounds groups epochs by round, in round order. NaN entries are
// left out of the aggregates.
func SummarizeRounds(epochs []model.EpochMetrics) []RoundSummary {
	var (
		out   []RoundSummary
		acc   mstats.Float64Data
		closs mstats.Float64Data
	)
	flush := func() {
		if len(out) == 0 {
			return
		}
		s := &out[len(out)-1]
		s.MeanAcc = metricOf(acc.Mean())
		s.MaxAcc = metricOf(acc.Max())
		s.StdDevAcc = metricOf(acc.StandardDeviation())
		s.MeanCLoss = metricOf(closs.Mean())
	}
	for _, e := range epochs {
		if len(out) == 0 || out[len(out)-1].Round != e.Round {
			flush()
			out = append(out, RoundSummary{Round: e.Round})
			acc, closs = nil, nil
		}
		s := &out[len(out)-1]
		s.Epochs++
		s.TotalSkips += e.SkippedSteps
		if v := float64(e.ValidAccuracy); !math.IsNaN(v) {
			acc = append(acc, v)
		}
		if v := float64(e.ClassificationLossTrain); !math.IsNaN(v) {
			closs = append(closs, v)
		}
	}
	flush()
	return out
}

// metricOf maps the error montanaflynn/stats returns for empty input to NaN.
func metricOf(v float64, err error) model.Metric {
	if err != nil {
		return model.Metric(math.NaN())
	}
	return model.Metric(v)
}

// PlotLearningCurve renders the three test accuracy curves of a run into a
// PNG at path. Rounds whose accuracy is NaN are skipped.
func PlotLearningCurve(path, title string, rounds []model.RoundResult) error {
	if len(rounds) == 0 {
		return errors.New("no rounds to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "labeled samples"
	p.Y.Label.Text = "test accuracy (%)"
	p.Add(plotter.NewGrid())

	series := []struct {
		name string
		get  func(CurvePoint) float64
	}{
		{"last epoch", func(c CurvePoint) float64 { return c.Last }},
		{"best accuracy", func(c CurvePoint) float64 { return c.BestAcc }},
		{"best loss", func(c CurvePoint) float64 { return c.BestLoss }},
	}
	points := BuildLearningCurve(rounds)
	for i, s := range series {
		xys := make(plotter.XYs, 0, len(points))
		for _, pt := range points {
			y := s.get(pt)
			if math.IsNaN(y) {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(pt.Labeled), Y: y})
		}
		if len(xys) == 0 {
			continue
		}
		line, scatter, err := plotter.NewLinePoints(xys)
		if err != nil {
			return errors.Wrapf(err, "plot %s", s.name)
		}
		line.Color = plotutil.Color(i)
		scatter.Color = plotutil.Color(i)
		scatter.Shape = plotutil.Shape(i)
		p.Add(line, scatter)
		p.Legend.Add(s.name, line, scatter)
	}
	p.Legend.Top = false
	p.Legend.Left = false
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// WriteLearningCurve renders the curve of a stored run into its directory.
func WriteLearningCurve(baseDir, runID string) (string, error) {
	rounds, ok, err := ReadRounds(baseDir, runID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Errorf("run %s has no rounds", runID)
	}
	path := filepath.Join(baseDir, runID, curveFile)
	if err := PlotLearningCurve(path, runID, rounds); err != nil {
		return "", err
	}
	return path, nil
}
