package preprocessing

import (
	"encoding/json"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/dataset"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Schema は学習時に固定された特徴量列の分類
type Schema struct {
	// Numeric は数値列名 (フレーム内の順序)
	Numeric []string `json:"numeric"`

	// Categorical はカテゴリ列名 (フレーム内の順序)
	Categorical []string `json:"categorical"`
}

// Kind は列の種別を返す。スキーマに無い列は ok=false
func (s Schema) Kind(name string) (kind dataset.Kind, ok bool) {
	for _, n := range s.Numeric {
		if n == name {
			return dataset.Numeric, true
		}
	}
	for _, n := range s.Categorical {
		if n == name {
			return dataset.Categorical, true
		}
	}
	return 0, false
}

// ColumnTransformer は列の種別ごとに変換を適用し、結果を連結する
//
// 数値列: StandardScaler → PolynomialFeatures(degree=2, include_bias=false)
// カテゴリ列: OneHotEncoder (未知カテゴリは全て0)
// 出力は数値側の列が先、カテゴリ側の列が後に並ぶ。
//
// 使用例:
//
//	ct := preprocessing.NewColumnTransformer()
//	if err := ct.Fit(split.Train); err != nil { ... }
//	Xtest, err := ct.Transform(split.Test)
type ColumnTransformer struct {
	model.BaseEstimator

	Scaler  *StandardScaler
	Poly    *PolynomialFeatures
	Encoder *OneHotEncoder

	schema Schema
	names  []string
}

// NewColumnTransformer は既定の数値・カテゴリ変換を持つColumnTransformerを作成する
func NewColumnTransformer() *ColumnTransformer {
	return &ColumnTransformer{
		Scaler:  NewStandardScalerDefault(),
		Poly:    NewPolynomialFeatures(2, false),
		Encoder: NewOneHotEncoder(),
	}
}

// Fit は訓練フレームの列の種別からスキーマを決定し、各変換器を学習する
func (ct *ColumnTransformer) Fit(train *dataset.Frame) error {
	columns := train.FeatureColumns()
	if len(columns) == 0 || train.NRows() == 0 {
		return errors.NewEmptyInputError("ColumnTransformer.Fit")
	}

	schema := Schema{}
	for _, c := range columns {
		switch c.Kind {
		case dataset.Numeric:
			schema.Numeric = append(schema.Numeric, c.Name)
		case dataset.Categorical:
			schema.Categorical = append(schema.Categorical, c.Name)
		default:
			return errors.NewConfigurationError("fit", c.Name, "unknown column kind", c.Kind.String())
		}
	}

	var names []string
	if len(schema.Numeric) > 0 {
		X := numericMatrix(train, schema.Numeric)
		scaled, err := ct.Scaler.FitTransform(X)
		if err != nil {
			return errors.Wrap(err, "numeric branch")
		}
		if err := ct.Poly.Fit(scaled); err != nil {
			return errors.Wrap(err, "numeric branch")
		}
		polyNames, err := ct.Poly.FeatureNamesOut(schema.Numeric)
		if err != nil {
			return err
		}
		names = append(names, polyNames...)
	}
	if len(schema.Categorical) > 0 {
		if err := ct.Encoder.Fit(categoricalColumns(train, schema.Categorical)); err != nil {
			return errors.Wrap(err, "categorical branch")
		}
		ohNames, err := ct.Encoder.FeatureNamesOut(schema.Categorical)
		if err != nil {
			return err
		}
		names = append(names, ohNames...)
	}

	ct.schema = schema
	ct.names = names
	ct.SetFitted()
	return nil
}

// Transform は学習済みの変換器を適用する。再学習は行わない
//
// スキーマに無い列、欠けている列、種別が変わった列があれば ConfigurationError を返す。
func (ct *ColumnTransformer) Transform(rows *dataset.Frame) (*mat.Dense, error) {
	if err := ct.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	if err := ct.checkSchema(rows); err != nil {
		return nil, err
	}
	n := rows.NRows()
	if n == 0 {
		return nil, errors.NewEmptyInputError("ColumnTransformer.Transform")
	}

	out := mat.NewDense(n, len(ct.names), nil)
	offset := 0
	if len(ct.schema.Numeric) > 0 {
		scaled, err := ct.Scaler.Transform(numericMatrix(rows, ct.schema.Numeric))
		if err != nil {
			return nil, err
		}
		expanded, err := ct.Poly.Transform(scaled)
		if err != nil {
			return nil, err
		}
		_, c := expanded.Dims()
		out.Slice(0, n, offset, offset+c).(*mat.Dense).Copy(expanded)
		offset += c
	}
	if len(ct.schema.Categorical) > 0 {
		encoded, err := ct.Encoder.Transform(categoricalColumns(rows, ct.schema.Categorical))
		if err != nil {
			return nil, err
		}
		_, c := encoded.Dims()
		out.Slice(0, n, offset, offset+c).(*mat.Dense).Copy(encoded)
	}
	return out, nil
}

// FitTransform は Fit の後に同じフレームを Transform する
func (ct *ColumnTransformer) FitTransform(train *dataset.Frame) (*mat.Dense, error) {
	if err := ct.Fit(train); err != nil {
		return nil, err
	}
	return ct.Transform(train)
}

// FeatureNamesOut は出力列名を順序通りに返す
func (ct *ColumnTransformer) FeatureNamesOut() []string {
	return append([]string(nil), ct.names...)
}

// Schema は学習時に固定されたスキーマを返す
func (ct *ColumnTransformer) Schema() Schema {
	return ct.schema
}

func (ct *ColumnTransformer) checkSchema(rows *dataset.Frame) error {
	present := make(map[string]bool)
	for _, c := range rows.FeatureColumns() {
		kind, ok := ct.schema.Kind(c.Name)
		if !ok {
			return errors.NewConfigurationError("transform", c.Name,
				"column is neither numeric nor categorical in the fitted schema", c.Kind.String())
		}
		if kind != c.Kind {
			return errors.NewConfigurationError("transform", c.Name,
				"column kind changed since fit, expected "+kind.String(), c.Kind.String())
		}
		present[c.Name] = true
	}
	for _, names := range [][]string{ct.schema.Numeric, ct.schema.Categorical} {
		for _, name := range names {
			if !present[name] {
				return errors.NewConfigurationError("transform", name, "column missing at transform time", "absent")
			}
		}
	}
	return nil
}

// MarshalJSON は学習済み状態を書き出す
func (ct *ColumnTransformer) MarshalJSON() ([]byte, error) {
	state := struct {
		Schema         Schema              `json:"schema"`
		FeatureNames   []string            `json:"feature_names_out"`
		StandardScaler *StandardScaler     `json:"standard_scaler,omitempty"`
		Polynomial     *PolynomialFeatures `json:"polynomial_features,omitempty"`
		OneHot         *OneHotEncoder      `json:"one_hot_encoder,omitempty"`
	}{
		Schema:       ct.schema,
		FeatureNames: ct.names,
	}
	if len(ct.schema.Numeric) > 0 {
		state.StandardScaler = ct.Scaler
		state.Polynomial = ct.Poly
	}
	if len(ct.schema.Categorical) > 0 {
		state.OneHot = ct.Encoder
	}
	return json.Marshal(state)
}

func numericMatrix(f *dataset.Frame, names []string) *mat.Dense {
	X := mat.NewDense(f.NRows(), len(names), nil)
	for j, name := range names {
		c, _ := f.Column(name)
		X.SetCol(j, c.Float)
	}
	return X
}

func categoricalColumns(f *dataset.Frame, names []string) [][]string {
	cols := make([][]string, len(names))
	for j, name := range names {
		c, _ := f.Column(name)
		cols[j] = c.String
	}
	return cols
}
