package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/rs/zerolog"
)

// 警告は処理を止めずに報告するための error 値です。Warn に渡すと、
// pkg/log が登録した zerolog の関数、なければ SetWarningHandler の
// ハンドラに届きます。ハンドラ呼び出しは直列化されるので、
// 並列ワーカーから呼んでもハンドラ側でロックは要りません。

var (
	warnMu      sync.Mutex
	warnHandler = func(w error) { log.Printf("scigo-tune warning: %v", w) }
	zerologWarn func(w error)
)

// SetWarningHandler replaces the fallback handler used when no zerolog
// function is registered.
//
//	errors.SetWarningHandler(func(w error) {}) // 警告を捨てる
func SetWarningHandler(handler func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	warnHandler = handler
}

// SetZerologWarnFunc registers the structured logger's warning function.
// pkg/log calls this from Setup; nil restores the fallback handler.
func SetZerologWarnFunc(fn func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	zerologWarn = fn
}

// Warn reports a warning.
func Warn(w error) {
	warnMu.Lock()
	defer warnMu.Unlock()
	switch {
	case zerologWarn != nil:
		zerologWarn(w)
	case warnHandler != nil:
		warnHandler(w)
	}
}

// ConvergenceWarning は反復ソルバが max_iter までに収束しなかったことを示します。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	msg := w.Message
	if msg == "" {
		msg = "consider increasing max_iter"
	}
	return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, msg)
}

func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "ConvergenceWarning").
		Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations)
}

// NewConvergenceWarning creates a ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// FitFailedWarning は候補1つ・分割1つの学習が失敗し、スコアが
// error_score に置き換えられたことを示します。
type FitFailedWarning struct {
	Candidate  int
	Split      int
	Params     map[string]interface{}
	ErrorScore float64
	Err        error
}

func (w *FitFailedWarning) Error() string {
	return fmt.Sprintf("fit failed for candidate %d on split %d (%s); score set to %v: %v",
		w.Candidate, w.Split, formatParams(w.Params), w.ErrorScore, w.Err)
}

func (w *FitFailedWarning) Unwrap() error { return w.Err }

func (w *FitFailedWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "FitFailedWarning").
		Int("candidate", w.Candidate).
		Int("split", w.Split).
		Interface("params", w.Params).
		Float64("error_score", w.ErrorScore).
		AnErr("cause", w.Err)
}

// NewFitFailedWarning creates a FitFailedWarning.
func NewFitFailedWarning(candidate, split int, params map[string]interface{}, errorScore float64, err error) *FitFailedWarning {
	return &FitFailedWarning{Candidate: candidate, Split: split, Params: params, ErrorScore: errorScore, Err: err}
}

// UndefinedMetricWarning は指標が定義できず Result で代用したことを示します
// (予測が1件もないクラスの precision など)。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("%s is ill-defined and set to %g: %s", w.Metric, w.Result, w.Condition)
}

func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "UndefinedMetricWarning").
		Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result)
}

// NewUndefinedMetricWarning creates an UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// SplitWarning は分割器が偏った分割しか作れないことを示します。
type SplitWarning struct {
	Splitter string
	Message  string
}

func (w *SplitWarning) Error() string { return w.Splitter + ": " + w.Message }

func (w *SplitWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "SplitWarning").Str("splitter", w.Splitter)
}

// NewSplitWarning creates a SplitWarning.
func NewSplitWarning(splitter, message string) *SplitWarning {
	return &SplitWarning{Splitter: splitter, Message: message}
}

// SearchSpaceWarning は探索空間が n_iter より小さいなど、
// 要求どおりの候補数を作れないことを示します。
type SearchSpaceWarning struct {
	Source  string
	Message string
}

func (w *SearchSpaceWarning) Error() string { return w.Source + ": " + w.Message }

func (w *SearchSpaceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "SearchSpaceWarning").Str("source", w.Source)
}

// NewSearchSpaceWarning creates a SearchSpaceWarning.
func NewSearchSpaceWarning(source, message string) *SearchSpaceWarning {
	return &SearchSpaceWarning{Source: source, Message: message}
}
