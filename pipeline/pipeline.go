// Package pipeline composes the column transformer and a catalog regressor
// into one fit/predict unit operating on raw frames.
package pipeline

import (
	"encoding/json"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/dataset"
	"github.com/YuminosukeSato/shapgo/explain"
	"github.com/YuminosukeSato/shapgo/models"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/pkg/log"
	"github.com/YuminosukeSato/shapgo/preprocessing"
)

// Pipeline is an unfitted transformer + estimator pair. It can be fitted once.
type Pipeline struct {
	transformer *preprocessing.ColumnTransformer
	spec        models.Spec
	state       *model.StateManager
	logger      log.Logger
}

// New creates a Pipeline. The estimator is built from spec at Fit time.
func New(transformer *preprocessing.ColumnTransformer, spec models.Spec) *Pipeline {
	return &Pipeline{
		transformer: transformer,
		spec:        spec,
		state:       model.NewStateManager(),
		logger: log.GetLoggerWithName("pipeline").With(
			log.ModelKindKey, string(spec.Kind()),
		),
	}
}

// Fit fits the transformer on train, then the estimator on the transformed
// matrix and y.
func (p *Pipeline) Fit(train *dataset.Frame, y []float64) (*Fitted, error) {
	if len(y) != train.NRows() {
		return nil, errors.NewDimensionMismatchError("Pipeline.Fit", train.NRows(), len(y))
	}
	if p.state.IsFitted() {
		return nil, errors.NewModelError("Pipeline.Fit", "already fitted", nil)
	}
	start := time.Now()

	X, err := p.transformer.FitTransform(train)
	if err != nil {
		return nil, errors.Wrap(err, "fit transformer")
	}
	n, c := X.Dims()
	p.logger.Debug("Transformer fitted",
		log.OperationKey, log.OperationTransform,
		log.SamplesKey, n,
		log.FeaturesKey, c,
		log.NumericColumnsKey, len(p.transformer.Schema().Numeric),
		log.CategoricalColumnsKey, len(p.transformer.Schema().Categorical),
	)

	est := p.spec.New()
	if err := est.Fit(X, mat.NewDense(n, 1, append([]float64(nil), y...))); err != nil {
		return nil, errors.Wrapf(err, "fit %s", est.Name())
	}
	if err := p.state.MarkFitted("Pipeline", c, n); err != nil {
		return nil, err
	}

	p.logger.Info("Pipeline fitted",
		log.OperationKey, log.OperationFit,
		log.ModelNameKey, est.Name(),
		log.SamplesKey, n,
		log.FeaturesKey, c,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	return &Fitted{
		spec:        p.spec,
		transformer: p.transformer,
		model:       est,
		names:       p.transformer.FeatureNamesOut(),
		train:       X,
		state:       p.state,
		logger:      p.logger,
	}, nil
}

// Fitted is the immutable result of Pipeline.Fit. It is safe for concurrent use.
type Fitted struct {
	spec        models.Spec
	transformer *preprocessing.ColumnTransformer
	model       model.Regressor
	names       []string
	train       *mat.Dense
	state       *model.StateManager
	logger      log.Logger
}

// Transform applies the fitted transformer. It never refits.
func (f *Fitted) Transform(rows *dataset.Frame) (*mat.Dense, error) {
	return f.transformer.Transform(rows)
}

// Predict transforms rows and returns one prediction per row.
func (f *Fitted) Predict(rows *dataset.Frame) ([]float64, error) {
	X, err := f.Transform(rows)
	if err != nil {
		return nil, err
	}
	pred, err := f.model.Predict(X)
	if err != nil {
		return nil, errors.Wrapf(err, "predict %s", f.model.Name())
	}
	return mat.Col(nil, 0, pred), nil
}

// Explain attributes the predictions for sample with the algorithm bound to
// the pipeline's Spec.
func (f *Fitted) Explain(sample *dataset.Frame) (*explain.Attribution, error) {
	start := time.Now()
	X, err := f.Transform(sample)
	if err != nil {
		return nil, err
	}
	explainer, err := f.spec.Explainer(f.model, f.train)
	if err != nil {
		return nil, err
	}
	attr, err := explain.Explain(explainer, X, f.names)
	if err != nil {
		return nil, err
	}

	top, _ := attr.TopFeature()
	f.logger.Info("Attribution computed",
		log.OperationKey, log.OperationExplain,
		log.SamplesKey, sample.NRows(),
		log.FeaturesKey, len(f.names),
		log.TopFeatureKey, top,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return attr, nil
}

// Model returns the fitted estimator.
func (f *Fitted) Model() model.Regressor { return f.model }

// Spec returns the catalog case the estimator was built from.
func (f *Fitted) Spec() models.Spec { return f.spec }

// FeatureNames returns the transformed feature names in column order.
func (f *Fitted) FeatureNames() []string { return append([]string(nil), f.names...) }

// TrainMatrix returns the transformed training matrix the estimator was fit on.
func (f *Fitted) TrainMatrix() mat.Matrix { return f.train }

// State returns the fitted dimensions.
func (f *Fitted) State() model.ModelState { return f.state.GetState() }

// MarshalJSON writes the transformer state and the estimator parameters.
func (f *Fitted) MarshalJSON() ([]byte, error) {
	params := make(map[string]interface{})
	for _, p := range f.spec.Params() {
		params[p.Key] = p.Value
	}
	return json.Marshal(struct {
		Kind         models.Kind                      `json:"kind"`
		Params       map[string]interface{}           `json:"params"`
		State        model.ModelState                 `json:"state"`
		FeatureNames []string                         `json:"feature_names"`
		Transformer  *preprocessing.ColumnTransformer `json:"transformer"`
		Estimator    model.Regressor                  `json:"estimator"`
	}{
		Kind:         f.spec.Kind(),
		Params:       params,
		State:        f.state.GetState(),
		FeatureNames: f.names,
		Transformer:  f.transformer,
		Estimator:    f.model,
	})
}
