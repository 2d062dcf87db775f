package classify

import (
	"context"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Ensemble member names, in output column order.
const (
	ModelBagging      = "bag"
	ModelRandomForest = "rf"
	ModelSVM          = "svm"
	ModelExtraTrees   = "et"
	ModelDecisionTree = "dt"
)

// Options configures NewEnsemble.
type Options struct {
	Seed       uint64
	Estimators int
	Neighbors  int
}

// DefaultOptions returns the ensemble settings used for the published
// regions.
func DefaultOptions() Options {
	return Options{Seed: 42, Estimators: 10, Neighbors: 5}
}

// Member is a named classifier in an Ensemble.
type Member struct {
	Name  string
	Model Classifier
}

// Ensemble is a majority vote over its members.
type Ensemble struct {
	Members []Member
}

// NewEnsemble builds bagged KNN, random forest, linear SVM, extra trees
// and a decision tree, each seeded from opts.Seed.
func NewEnsemble(opts Options) *Ensemble {
	return &Ensemble{Members: []Member{
		{Name: ModelBagging, Model: &Bagging{Estimators: opts.Estimators, Neighbors: opts.Neighbors, Seed: opts.Seed}},
		{Name: ModelRandomForest, Model: &RandomForest{Estimators: opts.Estimators, Seed: opts.Seed + 1}},
		{Name: ModelSVM, Model: &LinearSVM{C: 1, Seed: opts.Seed + 2}},
		{Name: ModelExtraTrees, Model: &ExtraTrees{Estimators: opts.Estimators, Seed: opts.Seed + 3}},
		{Name: ModelDecisionTree, Model: &DecisionTree{Seed: opts.Seed + 4}},
	}}
}

// Names returns member names in order.
func (e *Ensemble) Names() []string {
	names := make([]string, len(e.Members))
	for i, m := range e.Members {
		names[i] = m.Name
	}
	return names
}

// Fit trains all members concurrently.
func (e *Ensemble) Fit(ctx context.Context, ds Dataset) error {
	if err := ds.validate(); err != nil {
		return err
	}
	log := zap.L().With(zap.String("component", "classify"))

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range e.Members {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "classify: fit cancelled")
			}
			start := time.Now()
			if err := m.Model.Fit(ds); err != nil {
				return eris.Wrapf(err, "classify: fit %s", m.Name)
			}
			log.Debug("classify: member trained",
				zap.String("model", m.Name),
				zap.Int("samples", ds.Len()),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		})
	}
	return g.Wait()
}

// ModelScore is a member's accuracy on a dataset.
type ModelScore struct {
	Model string  `yaml:"model"`
	Score float64 `yaml:"score"`
}

// Score returns each member's accuracy on ds, in member order.
func (e *Ensemble) Score(ds Dataset) []ModelScore {
	scores := make([]ModelScore, len(e.Members))
	for i, m := range e.Members {
		scores[i] = ModelScore{Model: m.Name, Score: Score(m.Model, ds)}
	}
	return scores
}

// Prediction holds each member's label, in member order, and their vote.
type Prediction struct {
	Labels []int
	Vote   int
}

// Predict labels x with every member.
func (e *Ensemble) Predict(x []float64) Prediction {
	labels := make([]int, len(e.Members))
	for i, m := range e.Members {
		labels[i] = m.Model.Predict(x)
	}
	return Prediction{Labels: labels, Vote: Vote(labels...)}
}

// PredictAll labels every row, spreading rows across GOMAXPROCS workers.
func (e *Ensemble) PredictAll(ctx context.Context, rows [][]float64) ([]Prediction, error) {
	out := make([]Prediction, len(rows))
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(rows) + workers - 1) / max(workers, 1)
	if chunk == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return eris.Wrap(err, "classify: predict cancelled")
				}
				out[i] = e.Predict(rows[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Accuracy returns the share of rows whose vote matches want.
func Accuracy(preds []Prediction, want []int) float64 {
	if len(preds) == 0 {
		return 0
	}
	correct := 0
	for i, p := range preds {
		if p.Vote == want[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(preds))
}
