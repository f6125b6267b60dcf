package model

import "gonum.org/v1/gonum/mat"

// Transformer は数値行列に対する変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// FeatureNamer は変換後の列名を返す変換器
type FeatureNamer interface {
	// FeatureNamesOut は入力列名から出力列名を導出する
	FeatureNamesOut(input []string) ([]string, error)
}
