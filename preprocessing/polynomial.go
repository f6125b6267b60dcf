package preprocessing

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// PolynomialFeatures は多項式・交互作用特徴量を生成する
//
// 出力列はscikit-learnと同じ順序: 次数1の全項、次に次数2の x_i*x_j (i <= j) を
// 辞書順に並べる。IncludeBias が false の場合は定数項を含まない。
type PolynomialFeatures struct {
	model.BaseEstimator

	// Degree は最大次数
	Degree int `json:"degree"`

	// IncludeBias は定数項（全て1の列）を先頭に含めるかどうか
	IncludeBias bool `json:"include_bias"`

	// NFeatures は入力特徴量の数
	NFeatures int `json:"n_features_in"`

	// Powers は出力列ごとの入力特徴量インデックスの組 (重複あり、昇順)
	Powers [][]int `json:"powers"`
}

// NewPolynomialFeatures は新しいPolynomialFeaturesを作成する
func NewPolynomialFeatures(degree int, includeBias bool) *PolynomialFeatures {
	return &PolynomialFeatures{Degree: degree, IncludeBias: includeBias}
}

// Fit は入力特徴量数から出力項の組み合わせを決定する
func (p *PolynomialFeatures) Fit(X mat.Matrix) error {
	if p.Degree < 1 {
		return errors.NewValidationError("degree", "must be at least 1", p.Degree)
	}
	_, c := X.Dims()
	if c == 0 {
		return errors.NewModelError("PolynomialFeatures.Fit", "empty data", errors.ErrEmptyData)
	}

	p.NFeatures = c
	p.Powers = nil
	if p.IncludeBias {
		p.Powers = append(p.Powers, []int{})
	}
	for d := 1; d <= p.Degree; d++ {
		p.Powers = append(p.Powers, combinationsWithReplacement(c, d)...)
	}

	p.SetFitted()
	return nil
}

// combinationsWithReplacement は 0..n-1 から長さ k の重複組み合わせを辞書順で返す
func combinationsWithReplacement(n, k int) [][]int {
	var out [][]int
	combo := make([]int, k)
	var rec func(pos, start int)
	rec = func(pos, start int) {
		if pos == k {
			out = append(out, append([]int(nil), combo...))
			return
		}
		for i := start; i < n; i++ {
			combo[pos] = i
			rec(pos+1, i)
		}
	}
	rec(0, 0)
	return out
}

// Transform は多項式特徴量を計算する
func (p *PolynomialFeatures) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.RequireFitted("PolynomialFeatures", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != p.NFeatures {
		return nil, errors.NewDimensionError("PolynomialFeatures.Transform", p.NFeatures, c, 1)
	}

	result := mat.NewDense(r, len(p.Powers), nil)
	for i := 0; i < r; i++ {
		for k, term := range p.Powers {
			v := 1.0
			for _, j := range term {
				v *= X.At(i, j)
			}
			result.Set(i, k, v)
		}
	}
	return result, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (p *PolynomialFeatures) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// FeatureNamesOut は "a", "a^2", "a b" 形式の出力列名を返す
func (p *PolynomialFeatures) FeatureNamesOut(input []string) ([]string, error) {
	if err := p.RequireFitted("PolynomialFeatures", "FeatureNamesOut"); err != nil {
		return nil, err
	}
	if len(input) != p.NFeatures {
		return nil, errors.NewDimensionMismatchError("PolynomialFeatures.FeatureNamesOut", p.NFeatures, len(input))
	}

	names := make([]string, len(p.Powers))
	for k, term := range p.Powers {
		if len(term) == 0 {
			names[k] = "1"
			continue
		}
		var parts []string
		for s := 0; s < len(term); {
			e := s
			for e < len(term) && term[e] == term[s] {
				e++
			}
			if e-s == 1 {
				parts = append(parts, input[term[s]])
			} else {
				parts = append(parts, fmt.Sprintf("%s^%d", input[term[s]], e-s))
			}
			s = e
		}
		names[k] = strings.Join(parts, " ")
	}
	return names, nil
}

// NOutputFeatures は出力列数を返す
func (p *PolynomialFeatures) NOutputFeatures() int {
	return len(p.Powers)
}

var (
	_ model.Transformer  = (*PolynomialFeatures)(nil)
	_ model.FeatureNamer = (*PolynomialFeatures)(nil)
)
