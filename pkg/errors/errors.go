// Package errors は scigo-tune 全体で使うエラー型と警告の仕組みを提供します。
// エラーは cockroachdb/errors でスタックトレースを付けて返し、
// errors.As で型ごとに取り出せます。警告は warnings.go を参照してください。
package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// 共通のエラー値。Mark や Wrap で包んでも Is で判定できる。
var (
	ErrEmptyData      = errors.New("empty data")
	ErrSingularMatrix = errors.New("singular matrix")
	ErrSVDFailed      = errors.New("svd factorization failed")
)

// NotFittedError は学習前の推定器で Predict や Transform を呼んだときのエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("%s is not fitted yet; call Fit before %s", e.ModelName, e.Method)
}

func (e *NotFittedError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "NotFittedError").Str("model", e.ModelName).Str("method", e.Method)
}

// NewNotFittedError returns a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は行数または特徴量数が期待と合わないときのエラーです。
// Axis は 0 が行、1 が特徴量。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: expected %d %s, got %d", e.Op, e.Expected, e.axisName(), e.Got)
}

func (e *DimensionError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "DimensionError").
		Str("op", e.Op).
		Str("axis", e.axisName()).
		Int("expected", e.Expected).
		Int("got", e.Got)
}

// NewDimensionError returns a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError はハイパーパラメータや設定値が不正なときのエラーです。
// ParamName は "clf__C" のような探索空間のキー、または設定ファイルの属性名。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s (got %v)", e.ParamName, e.Reason, e.Value)
}

func (e *ValidationError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "ValidationError").
		Str("param", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value)
}

// NewValidationError returns a ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError はデータそのものが処理できないときのエラーです
// (空のベクトル、クラスが1つしかない、など)。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return e.Op + ": " + e.Message
}

// NewValueError returns a ValueError with a stack trace.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は学習や変換の内部処理が失敗したときのエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError returns a ModelError with a stack trace.
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// FitError は error_score が "raise" のとき、探索を中断させた学習失敗です。
// Candidate が負の場合は CrossValidate での失敗を表します。
type FitError struct {
	Candidate int
	Split     int
	Params    map[string]interface{}
	Err       error
}

func (e *FitError) Error() string {
	if e.Candidate < 0 {
		return fmt.Sprintf("fit failed on split %d: %v", e.Split, e.Err)
	}
	return fmt.Sprintf("fit failed for candidate %d (%s) on split %d: %v",
		e.Candidate, formatParams(e.Params), e.Split, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

func (e *FitError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "FitError").
		Int("candidate", e.Candidate).
		Int("split", e.Split).
		Interface("params", e.Params).
		AnErr("cause", e.Err)
}

// NewFitError returns a FitError with a stack trace.
func NewFitError(candidate, split int, params map[string]interface{}, err error) error {
	return errors.WithStack(&FitError{Candidate: candidate, Split: split, Params: params, Err: err})
}

// formatParams はキー順に並べた "k=v" の列を返す
func formatParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, ", ")
}

// cockroachdb/errors の薄いラッパー

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// New returns an error with a stack trace.
func New(message string) error { return errors.New(message) }

// Wrap annotates err with a message. Wrap(nil, ...) is nil.
func Wrap(err error, message string) error { return errors.Wrap(err, message) }

// Wrapf annotates err with a formatted message. Wrapf(nil, ...) is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Mark makes Is(err, reference) true while keeping err's message.
//
//	return errors.Mark(err, errors.ErrSingularMatrix)
func Mark(err, reference error) error { return errors.Mark(err, reference) }
