package regions

import (
	"context"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/labormarket/internal/census"
	"github.com/sells-group/labormarket/internal/classify"
	"github.com/sells-group/labormarket/internal/table"
)

// ModelInput is everything Model needs.
type ModelInput struct {
	Counties     []census.Geography
	Places       []census.Geography
	Classes      map[string]int
	Ensemble     classify.Options
	TestFraction float64
	SplitSeed    uint64
}

// RegionRow is a county with each member's label, the vote and the
// region's name.
type RegionRow struct {
	census.Geography
	Labels   []int
	Pred     int
	AreaName string
}

// Region is a named predicted region.
type Region struct {
	Class    int     `yaml:"class"`
	Name     string  `yaml:"name"`
	Anchor   string  `yaml:"anchor"`
	Pop      float64 `yaml:"population"`
	Counties int     `yaml:"counties"`
}

// ModelResult is the outcome of a Model run.
type ModelResult struct {
	Members        []string
	Scores         []classify.ModelScore
	EnsembleScore  float64
	Training       int
	Test           int
	Rows           []RegionRow
	Regions        []Region
	DroppedUnnamed int
}

// Model trains the ensemble on classified counties, labels every county
// and place, names each region after its most populous place and keeps
// the counties whose region got a name.
func Model(ctx context.Context, in ModelInput) (*ModelResult, error) {
	log := zap.L().With(zap.String("component", "regions.model"))

	ds := trainingSet(in.Counties, in.Classes)
	if ds.Len() == 0 {
		return nil, eris.New("regions: no county has a modularity class")
	}

	train, test, err := classify.TrainTestSplit(ds, in.TestFraction, in.SplitSeed)
	if err != nil {
		return nil, eris.Wrap(err, "regions: split training data")
	}

	ens := classify.NewEnsemble(in.Ensemble)
	if err := ens.Fit(ctx, train); err != nil {
		return nil, eris.Wrap(err, "regions: train ensemble")
	}

	res := &ModelResult{
		Members:  ens.Names(),
		Scores:   ens.Score(test),
		Training: train.Len(),
		Test:     test.Len(),
	}
	for _, s := range res.Scores {
		log.Info("regions: model score", zap.String("model", s.Model), zap.Float64("score", s.Score))
	}

	testPreds, err := ens.PredictAll(ctx, test.X)
	if err != nil {
		return nil, eris.Wrap(err, "regions: score ensemble")
	}
	res.EnsembleScore = classify.Accuracy(testPreds, test.Y)
	log.Info("regions: ensemble score", zap.Float64("score", res.EnsembleScore))

	countyPreds, err := ens.PredictAll(ctx, points(in.Counties))
	if err != nil {
		return nil, eris.Wrap(err, "regions: predict counties")
	}
	placePreds, err := ens.PredictAll(ctx, points(in.Places))
	if err != nil {
		return nil, eris.Wrap(err, "regions: predict places")
	}

	names := nameRegions(in.Places, placePreds)

	counts := make(map[int]int)
	for i, c := range in.Counties {
		p := countyPreds[i]
		region, ok := names[p.Vote]
		if !ok {
			res.DroppedUnnamed++
			continue
		}
		counts[p.Vote]++
		res.Rows = append(res.Rows, RegionRow{Geography: c, Labels: p.Labels, Pred: p.Vote, AreaName: region.Name})
	}

	for class, n := range counts {
		r := names[class]
		r.Counties = n
		res.Regions = append(res.Regions, r)
	}
	sort.Slice(res.Regions, func(a, b int) bool { return res.Regions[a].Class < res.Regions[b].Class })

	log.Info("regions: classified counties",
		zap.Int("counties", len(res.Rows)),
		zap.Int("regions", len(res.Regions)),
		zap.Int("dropped_unnamed", res.DroppedUnnamed),
	)
	return res, nil
}

func trainingSet(counties []census.Geography, classes map[string]int) classify.Dataset {
	var ds classify.Dataset
	for _, c := range counties {
		class, ok := classes[c.ID]
		if !ok {
			continue
		}
		ds.X = append(ds.X, []float64{c.Latitude, c.Longitude})
		ds.Y = append(ds.Y, class)
	}
	return ds
}

func points(geos []census.Geography) [][]float64 {
	out := make([][]float64, len(geos))
	for i, g := range geos {
		out[i] = []float64{g.Latitude, g.Longitude}
	}
	return out
}

// nameRegions picks, per predicted region, the place with the largest
// population (ties to the alphabetically first name). Places without a
// population count never name a region.
func nameRegions(places []census.Geography, preds []classify.Prediction) map[int]Region {
	best := make(map[int]census.Geography)
	for i, p := range places {
		if !p.HasPopulation {
			continue
		}
		class := preds[i].Vote
		cur, ok := best[class]
		if !ok || p.Population > cur.Population || (p.Population == cur.Population && p.Name < cur.Name) {
			best[class] = p
		}
	}

	out := make(map[int]Region, len(best))
	for class, p := range best {
		out[class] = Region{Class: class, Name: census.CleanPlaceName(p.Name), Anchor: p.Name, Pop: p.Population}
	}
	return out
}

// RegionHeader returns the output columns for the given member names.
func RegionHeader(members []string) []string {
	header := []string{"fips", "County", "Latitude", "Longitude"}
	header = append(header, members...)
	return append(header, "pred", "Area Name")
}

// WriteRegions writes the regionalized county table.
func WriteRegions(path string, res *ModelResult) error {
	rows := make([][]string, len(res.Rows))
	for i, r := range res.Rows {
		row := []string{r.ID, r.Name, table.FormatFloat(r.Latitude), table.FormatFloat(r.Longitude)}
		for _, l := range r.Labels {
			row = append(row, strconv.Itoa(l))
		}
		rows[i] = append(row, strconv.Itoa(r.Pred), r.AreaName)
	}
	if err := table.WriteCSV(path, RegionHeader(res.Members), rows); err != nil {
		return eris.Wrap(err, "regions: write regions")
	}
	return nil
}

// Report is the YAML summary of a Model run.
type Report struct {
	GeneratedAt     time.Time             `yaml:"generated_at"`
	TrainingSamples int                   `yaml:"training_samples"`
	TestSamples     int                   `yaml:"test_samples"`
	Scores          []classify.ModelScore `yaml:"scores"`
	EnsembleScore   float64               `yaml:"ensemble_score"`
	Counties        int                   `yaml:"counties"`
	DroppedUnnamed  int                   `yaml:"dropped_unnamed"`
	Regions         []Region              `yaml:"regions"`
}

// NewReport summarizes res.
func NewReport(res *ModelResult, now time.Time) Report {
	return Report{
		GeneratedAt:     now.UTC(),
		TrainingSamples: res.Training,
		TestSamples:     res.Test,
		Scores:          res.Scores,
		EnsembleScore:   res.EnsembleScore,
		Counties:        len(res.Rows),
		DroppedUnnamed:  res.DroppedUnnamed,
		Regions:         res.Regions,
	}
}

// WriteReport writes the report as YAML.
func WriteReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "regions: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "regions: write report")
	}
	return nil
}
