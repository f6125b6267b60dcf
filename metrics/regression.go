package metrics

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Record は評価ステージの出力。3指標はすべて有限値
type Record struct {
	MSE float64 `json:"mse"`
	MAE float64 `json:"mae"`
	R2  float64 `json:"r2"`
}

// Evaluate はテスト分割の正解値と予測値から MSE, MAE, R² を計算する。
//
// 長さが異なる場合は DimensionMismatchError、長さ 0 の場合は EmptyInputError を返す。
// 正解値の分散が 0 のとき、R² は予測が完全一致なら 1、そうでなければ 0 とする。
func Evaluate(yTrue, yPred []float64) (Record, error) {
	if len(yTrue) != len(yPred) {
		return Record{}, errors.NewDimensionMismatchError("Evaluate", len(yTrue), len(yPred))
	}
	n := len(yTrue)
	if n == 0 {
		return Record{}, errors.NewEmptyInputError("Evaluate")
	}
	if err := errors.CheckNumericalStability("Evaluate", yPred); err != nil {
		return Record{}, err
	}

	truth := mat.NewVecDense(n, yTrue)
	pred := mat.NewVecDense(n, yPred)

	var rec Record
	var err error
	if rec.MSE, err = MSE(truth, pred); err != nil {
		return Record{}, err
	}
	if rec.MAE, err = MAE(truth, pred); err != nil {
		return Record{}, err
	}
	if rec.R2, err = R2Score(truth, pred); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// MSE は平均二乗誤差
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	res, err := residuals("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return mat.Dot(res, res) / float64(res.Len()), nil
}

// MAE は平均絶対誤差
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	res, err := residuals("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return mat.Norm(res, 1) / float64(res.Len()), nil
}

// R2Score は決定係数。正解値の分散が 0 の場合は UndefinedMetricWarning を出す
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	res, err := residuals("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	truth := mat.Col(nil, 0, yTrue)
	_, variance := stat.PopMeanVariance(truth, nil)
	return r2(mat.Dot(res, res), variance*float64(len(truth))), nil
}

// residuals は yTrue - yPred を返す
func residuals(op string, yTrue, yPred *mat.VecDense) (*mat.VecDense, error) {
	n := yTrue.Len()
	if yPred.Len() != n {
		return nil, errors.NewDimensionMismatchError(op, n, yPred.Len())
	}
	if n == 0 {
		return nil, errors.NewEmptyInputError(op)
	}
	res := mat.NewVecDense(n, nil)
	res.SubVec(yTrue, yPred)
	return res, nil
}

func r2(rss, tss float64) float64 {
	if tss == 0 {
		score := 0.0
		if rss == 0 {
			score = 1
		}
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "constant y_true", score))
		return score
	}
	return 1 - rss/tss
}
