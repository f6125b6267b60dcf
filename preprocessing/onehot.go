package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// OneHotEncoder はカテゴリ列を指示ベクトルに変換する
//
// handle_unknown="ignore" 相当: 学習時に存在しなかった値は、その列の出力が
// 全て0になる。Transform が未知カテゴリでエラーを返すことはない。
type OneHotEncoder struct {
	model.BaseEstimator

	// Categories は列ごとのカテゴリ (昇順)
	Categories [][]string `json:"categories"`

	lookup []map[string]int
}

// NewOneHotEncoder は新しいOneHotEncoderを作成する
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{}
}

// Fit は各列のカテゴリ集合を学習する。columns[j] は j 列目の値
func (e *OneHotEncoder) Fit(columns [][]string) error {
	if len(columns) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	e.Categories = make([][]string, len(columns))
	e.lookup = make([]map[string]int, len(columns))
	for j, col := range columns {
		if len(col) == 0 {
			return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
		}
		seen := make(map[string]struct{})
		for _, v := range col {
			seen[v] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)

		e.Categories[j] = cats
		e.lookup[j] = make(map[string]int, len(cats))
		for k, v := range cats {
			e.lookup[j][v] = k
		}
	}

	e.SetFitted()
	return nil
}

// Transform は学習済みカテゴリでワンホット行列を作る
func (e *OneHotEncoder) Transform(columns [][]string) (*mat.Dense, error) {
	if err := e.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	if len(columns) != len(e.Categories) {
		return nil, errors.NewDimensionError("OneHotEncoder.Transform", len(e.Categories), len(columns), 1)
	}

	rows := len(columns[0])
	if rows == 0 {
		return nil, errors.NewEmptyInputError("OneHotEncoder.Transform")
	}
	result := mat.NewDense(rows, e.NOutputFeatures(), nil)

	offset := 0
	for j, col := range columns {
		if len(col) != rows {
			return nil, errors.NewDimensionMismatchError("OneHotEncoder.Transform", rows, len(col))
		}
		for i, v := range col {
			if k, ok := e.lookup[j][v]; ok {
				result.Set(i, offset+k, 1)
			}
		}
		offset += len(e.Categories[j])
	}
	return result, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (e *OneHotEncoder) FitTransform(columns [][]string) (*mat.Dense, error) {
	if err := e.Fit(columns); err != nil {
		return nil, err
	}
	return e.Transform(columns)
}

// FeatureNamesOut は "col_value" 形式の出力列名を返す
func (e *OneHotEncoder) FeatureNamesOut(input []string) ([]string, error) {
	if err := e.RequireFitted("OneHotEncoder", "FeatureNamesOut"); err != nil {
		return nil, err
	}
	if len(input) != len(e.Categories) {
		return nil, errors.NewDimensionMismatchError("OneHotEncoder.FeatureNamesOut", len(e.Categories), len(input))
	}
	names := make([]string, 0, e.NOutputFeatures())
	for j, cats := range e.Categories {
		for _, v := range cats {
			names = append(names, input[j]+"_"+v)
		}
	}
	return names, nil
}

// NOutputFeatures は出力列数を返す
func (e *OneHotEncoder) NOutputFeatures() int {
	n := 0
	for _, cats := range e.Categories {
		n += len(cats)
	}
	return n
}

var _ model.FeatureNamer = (*OneHotEncoder)(nil)
