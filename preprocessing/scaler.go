// Package preprocessing はscikit-learn互換の特徴量スケーリングを提供する
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// ready は Transform 系メソッドの前提条件 (学習済み・特徴量数一致) を確認する
func ready(state *model.StateManager, name, method string, X mat.Matrix) error {
	if err := state.RequireFitted(name, method); err != nil {
		return err
	}
	return state.CheckFeatures(name+"."+method, X)
}

// perColumn は列ごとの写像 f を X の全要素に適用した新しい行列を返す
func perColumn(X mat.Matrix, f func(j int, v float64) float64) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 { return f(j, v) }, X)
	return out
}

// StandardScaler は各特徴量から平均を引き、母標準偏差で割る。
// 分散がほぼ0の特徴量は割らずにそのまま残す。
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（母標準偏差）
	Scale []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := model.FitTransform(scaler, X, nil)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する。y は無視される。
func (s *StandardScaler) Fit(X, _ mat.Matrix) error {
	r, c, err := model.CheckX("StandardScaler.Fit", X)
	if err != nil {
		return err
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)

		if s.WithMean {
			s.Mean[j] = mean
		}

		s.Scale[j] = 1.0
		// 標準偏差が0に近い場合は1のまま（ゼロ除算を避ける）
		if s.WithStd && std >= 1e-8 {
			s.Scale[j] = std
		}
	}

	s.state.SetFitted(c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := ready(s.state, "StandardScaler", "Transform", X); err != nil {
		return nil, err
	}
	return perColumn(X, func(j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}), nil
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := ready(s.state, "StandardScaler", "InverseTransform", X); err != nil {
		return nil, err
	}
	return perColumn(X, func(j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}), nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// SetParams はスケーラーのパラメータを設定する
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "with_mean":
			s.WithMean, err = model.ToBool(key, value)
		case "with_std":
			s.WithStd, err = model.ToBool(key, value)
		default:
			return model.UnknownParam("StandardScaler", key)
		}
		if err != nil {
			return err
		}
	}
	s.state.Reset()
	return nil
}

// Clone は同じパラメータを持つ未学習のスケーラーを返す
func (s *StandardScaler) Clone() model.Estimator {
	return NewStandardScaler(s.WithMean, s.WithStd)
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
}

// MinMaxScaler は各特徴量を学習データの最小値・最大値から
// FeatureRange (既定 [0, 1]) へ線形に写す。
type MinMaxScaler struct {
	state *model.StateManager

	// DataMin は学習データの最小値
	DataMin []float64

	// DataRange は学習データの範囲 (max - min)。定数特徴量は1
	DataRange []float64

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
//
//	scaler := preprocessing.NewMinMaxScaler([2]float64{0.0, 1.0})
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		state:        model.NewStateManager(),
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit は訓練データから最小値・最大値を計算する
func (m *MinMaxScaler) Fit(X, _ mat.Matrix) error {
	r, c, err := model.CheckX("MinMaxScaler.Fit", X)
	if err != nil {
		return err
	}
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValidationError("feature_range", "minimum must be smaller than maximum", m.FeatureRange)
	}

	m.DataMin = make([]float64, c)
	m.DataRange = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		lo := floats.Min(col)
		m.DataMin[j] = lo
		m.DataRange[j] = floats.Max(col) - lo
		// 定数列は範囲1として扱い、下限に写す
		if math.Abs(m.DataRange[j]) < 1e-8 {
			m.DataRange[j] = 1.0
		}
	}

	m.state.SetFitted(c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータをスケーリングする
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := ready(m.state, "MinMaxScaler", "Transform", X); err != nil {
		return nil, err
	}
	lo, width := m.FeatureRange[0], m.FeatureRange[1]-m.FeatureRange[0]
	return perColumn(X, func(j int, v float64) float64 {
		return (v-m.DataMin[j])/m.DataRange[j]*width + lo
	}), nil
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := ready(m.state, "MinMaxScaler", "InverseTransform", X); err != nil {
		return nil, err
	}
	lo, width := m.FeatureRange[0], m.FeatureRange[1]-m.FeatureRange[0]
	return perColumn(X, func(j int, v float64) float64 {
		return (v-lo)/width*m.DataRange[j] + m.DataMin[j]
	}), nil
}

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_min": m.FeatureRange[0],
		"feature_max": m.FeatureRange[1],
	}
}

// SetParams はスケーラーのパラメータを設定する
func (m *MinMaxScaler) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "feature_min":
			m.FeatureRange[0], err = model.ToFloat(key, value)
		case "feature_max":
			m.FeatureRange[1], err = model.ToFloat(key, value)
		default:
			return model.UnknownParam("MinMaxScaler", key)
		}
		if err != nil {
			return err
		}
	}
	m.state.Reset()
	return nil
}

// Clone は同じパラメータを持つ未学習のスケーラーを返す
func (m *MinMaxScaler) Clone() model.Estimator {
	return NewMinMaxScaler(m.FeatureRange)
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=[%g, %g])", m.FeatureRange[0], m.FeatureRange[1])
}
