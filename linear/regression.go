package linear

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/core/parallel"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は最小二乗法による線形回帰モデル
//
// 中心化した X, y に対して特異値分解で最小ノルム解を求めるため、
// ワンホット列の多重共線性などでランクが落ちても学習できる。
type LinearRegression struct {
	model.BaseEstimator // BaseEstimatorを埋め込み

	Weights   *mat.VecDense // 重み（係数）
	Intercept float64       // 切片
	NFeatures int           // 特徴量の数
	Rank      int           // 計画行列の数値ランク
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Name は推定器の型名を返す
func (lr *LinearRegression) Name() string { return "LinearRegression" }

// Fit はモデルを訓練データで学習させる
//
// X と y を列平均で中心化し、SVD で min ||Xc w - yc|| を解く。
// 切片は ȳ - x̄·w で求める。ランク落ちの場合は RankDeficiencyWarning を出す。
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}

	xMean := make([]float64, c)
	for j := 0; j < c; j++ {
		xMean[j] = floats.Sum(mat.Col(nil, j, X)) / float64(r)
	}
	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	// 中心化した計画行列と目的変数
	Xc := mat.NewDense(r, c, nil)
	yc := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				Xc.Set(i, j, X.At(i, j)-xMean[j])
			}
			yc.Set(i, 0, y.At(i, 0)-yMean)
		}
	})

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}

	// numpy.linalg.lstsq と同じ閾値
	rcond := float64(max(r, c)) * 2.220446049250313e-16
	rank := svd.Rank(rcond)

	weights := mat.NewVecDense(c, nil)
	if rank > 0 {
		var w mat.Dense
		svd.SolveTo(&w, yc, rank)
		weights.CopyVec(w.ColView(0))
	}
	if rank < c {
		errors.Warn(errors.NewRankDeficiencyWarning(lr.Name(), rank, c))
	}

	if err := errors.CheckNumericalStability("LinearRegression.Fit", weights.RawVector().Data); err != nil {
		return err
	}

	lr.NFeatures = c
	lr.Rank = rank
	lr.Weights = weights
	lr.Intercept = yMean - mat.Dot(mat.NewVecDense(c, xMean), weights)

	lr.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.RequireFitted(lr.Name(), "Predict"); err != nil {
		return nil, err
	}

	_, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}

	// 予測: y = X * weights + intercept
	var predictions mat.Dense
	predictions.Mul(X, lr.Weights)
	predictions.Apply(func(i, j int, v float64) float64 {
		return v + lr.Intercept
	}, &predictions)
	return &predictions, nil
}

// GetWeights は学習された重み（係数）を返す
func (lr *LinearRegression) GetWeights() []float64 {
	if lr.Weights == nil {
		return nil
	}
	return append([]float64(nil), lr.Weights.RawVector().Data...)
}

// GetIntercept は学習された切片を返す
func (lr *LinearRegression) GetIntercept() float64 {
	if !lr.IsFitted() {
		return 0
	}
	return lr.Intercept
}

// FeatureImportances は係数の絶対値を重要度として返す
func (lr *LinearRegression) FeatureImportances() ([]float64, model.ImportanceSource, bool) {
	if !lr.IsFitted() {
		return nil, "", false
	}
	scores := lr.GetWeights()
	for i, w := range scores {
		scores[i] = math.Abs(w)
	}
	return scores, model.CoefficientImportance, true
}

// GetParams はモデルのパラメータを返す
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": true,
	}
}

// sklearnModel はscikit-learn互換のモデル記述
type sklearnModel struct {
	ModelSpec struct {
		Name          string `json:"name"`
		FormatVersion string `json:"format_version"`
	} `json:"model_spec"`
	Params struct {
		Coefficients []float64 `json:"coef"`
		Intercept    float64   `json:"intercept"`
		NFeatures    int       `json:"n_features_in"`
		Rank         int       `json:"rank"`
	} `json:"params"`
}

// MarshalJSON はモデルをscikit-learn互換のJSON形式で書き出す
func (lr *LinearRegression) MarshalJSON() ([]byte, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError(lr.Name(), "MarshalJSON")
	}

	var m sklearnModel
	m.ModelSpec.Name = lr.Name()
	m.ModelSpec.FormatVersion = "1.0"
	m.Params.Coefficients = lr.GetWeights()
	m.Params.Intercept = lr.Intercept
	m.Params.NFeatures = lr.NFeatures
	m.Params.Rank = lr.Rank
	return json.Marshal(m)
}

// String はモデルの文字列表現を返す
func (lr *LinearRegression) String() string {
	if !lr.IsFitted() {
		return "LinearRegression()"
	}
	return fmt.Sprintf("LinearRegression(n_features=%d, rank=%d)", lr.NFeatures, lr.Rank)
}

var (
	_ model.Regressor       = (*LinearRegression)(nil)
	_ model.ParameterGetter = (*LinearRegression)(nil)
)
