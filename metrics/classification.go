package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// logLossEps はlog(0)を避けるための確率のクリップ幅
const logLossEps = 1e-15

// ColumnVec は n×1 行列の先頭列をVecDenseとして取り出す
func ColumnVec(m mat.Matrix) *mat.VecDense {
	if m == nil {
		return nil
	}
	if v, ok := m.(*mat.VecDense); ok {
		return v
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return &mat.VecDense{}
	}
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, m.At(i, 0))
	}
	return out
}

// checkPair は2つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if int(yTrue.AtVec(i)) == int(yPred.AtVec(i)) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - 正解率）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

func isBinary(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); x != 0 && x != 1 {
			return false
		}
	}
	return true
}

// AUC は二値分類のROC曲線下面積を計算する。
// 同順位のスコアは平均順位で扱い、片方のクラスしか無い場合は0.5を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if !isBinary(yTrue) {
		return 0, errors.NewValueError("AUC", "yTrue must contain only 0 and 1")
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return yScore.AtVec(order[a]) < yScore.AtVec(order[b])
	})

	// 平均順位（1始まり）
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(order[j+1]) == yScore.AtVec(order[i]) {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg, rankSum float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in yTrue", 0.5))
		return 0.5, nil
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	if yTrue == nil || yScore == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}
	return AUC(ColumnVec(yTrue), ColumnVec(yScore))
}

// BinaryLogLoss は二値分類の対数損失を計算する。予測確率は[eps, 1-eps]にクリップされる。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if !isBinary(yTrue) {
		return 0, errors.NewValueError("BinaryLogLoss", "yTrue must contain only 0 and 1")
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// LogLoss は多クラスの対数損失（交差エントロピー）を計算する。
// proba の列は classes の順に並んでいる必要がある。
func LogLoss(yTrue *mat.VecDense, proba mat.Matrix, classes []int) (float64, error) {
	if yTrue == nil || yTrue.Len() == 0 || proba == nil {
		return 0, errors.NewValueError("LogLoss", "empty input")
	}
	n := yTrue.Len()
	r, c := proba.Dims()
	if r != n {
		return 0, errors.NewDimensionError("LogLoss", n, r, 0)
	}
	if c != len(classes) {
		return 0, errors.NewDimensionError("LogLoss", len(classes), c, 1)
	}

	idx := make(map[int]int, len(classes))
	for i, cl := range classes {
		idx[cl] = i
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		label := int(yTrue.AtVec(i))
		col, ok := idx[label]
		if !ok {
			return 0, errors.NewValueError("LogLoss",
				fmt.Sprintf("label %d not present in classes %v", label, classes))
		}
		// 行ごとに正規化してからクリップする
		rowSum := 0.0
		for j := 0; j < c; j++ {
			rowSum += proba.At(i, j)
		}
		p := errors.ClipValue(errors.SafeDivide(proba.At(i, col), rowSum), logLossEps, 1-logLossEps)
		sum -= math.Log(p)
	}
	return sum / float64(n), nil
}

// unionLabels returns the sorted distinct labels of both vectors.
func unionLabels(yTrue, yPred *mat.VecDense) []int {
	seen := map[int]bool{}
	for _, v := range []*mat.VecDense{yTrue, yPred} {
		for i := 0; i < v.Len(); i++ {
			seen[int(v.AtVec(i))] = true
		}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// ConfusionMatrix は混同行列を返す。行が正解、列が予測で、順序は labels に従う。
// labels が nil の場合は両ベクトルに現れるラベルの昇順になる。
func ConfusionMatrix(yTrue, yPred *mat.VecDense, labels []int) (*mat.Dense, []int, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}
	if labels == nil {
		labels = unionLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}

	idx := make(map[int]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		t, okT := idx[int(yTrue.AtVec(i))]
		p, okP := idx[int(yPred.AtVec(i))]
		if okT && okP {
			cm.Set(t, p, cm.At(t, p)+1)
		}
	}
	return cm, labels, nil
}

// ClassScores はクラスごとの適合率・再現率・F1・サポート数
type ClassScores struct {
	Labels    []int
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []float64

	// 分母が0で0に置き換えた指標があったか
	UndefinedPrecision bool
	UndefinedRecall    bool
}

// Warnings returns the UndefinedMetricWarnings for the zero-denominator
// metrics, in a fixed order.
func (s *ClassScores) Warnings() []error {
	var warnings []error
	if s.UndefinedPrecision {
		warnings = append(warnings, errors.NewUndefinedMetricWarning("precision", "labels with no predicted samples", 0))
	}
	if s.UndefinedRecall {
		warnings = append(warnings, errors.NewUndefinedMetricWarning("recall", "labels with no true samples", 0))
	}
	return warnings
}

// Average はクラスごとの指標を "macro" か "weighted" で平均する
func (s *ClassScores) Average(average string) (precision, recall, f1 float64, err error) {
	if average != "macro" && average != "weighted" {
		return 0, 0, 0, errors.NewValidationError("average", `must be "macro" or "weighted"`, average)
	}
	total := 0.0
	for c := range s.Labels {
		w := 1.0
		if average == "weighted" {
			w = s.Support[c]
		}
		precision += w * s.Precision[c]
		recall += w * s.Recall[c]
		f1 += w * s.F1[c]
		total += w
	}
	return precision / total, recall / total, f1 / total, nil
}

// PrecisionRecallFSupport はクラスごとの指標を計算する。
// 分母が0になる指標は0とし、UndefinedMetricWarningを出す。
func PrecisionRecallFSupport(yTrue, yPred *mat.VecDense) (*ClassScores, error) {
	s, err := ComputeClassScores(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	for _, w := range s.Warnings() {
		errors.Warn(w)
	}
	return s, nil
}

// ComputeClassScores is PrecisionRecallFSupport without the warnings; the
// Undefined flags record what would have been reported.
func ComputeClassScores(yTrue, yPred *mat.VecDense) (*ClassScores, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred, nil)
	if err != nil {
		return nil, err
	}
	k := len(labels)
	s := &ClassScores{
		Labels:    labels,
		Precision: make([]float64, k),
		Recall:    make([]float64, k),
		F1:        make([]float64, k),
		Support:   make([]float64, k),
	}

	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		predicted := 0.0
		actual := 0.0
		for j := 0; j < k; j++ {
			predicted += cm.At(j, c)
			actual += cm.At(c, j)
		}
		s.Support[c] = actual

		if predicted == 0 {
			s.UndefinedPrecision = true
		} else {
			s.Precision[c] = tp / predicted
		}
		if actual == 0 {
			s.UndefinedRecall = true
		} else {
			s.Recall[c] = tp / actual
		}
		if s.Precision[c]+s.Recall[c] > 0 {
			s.F1[c] = 2 * s.Precision[c] * s.Recall[c] / (s.Precision[c] + s.Recall[c])
		}
	}

	return s, nil
}

// PrecisionRecallF1 は平均化した適合率・再現率・F1を返す。
// average は "macro", "weighted", "micro" のいずれか。
func PrecisionRecallF1(yTrue, yPred *mat.VecDense, average string) (precision, recall, f1 float64, err error) {
	switch average {
	case "micro":
		// 単一ラベル分類では micro 平均はすべて正解率に一致する
		acc, err := Accuracy(yTrue, yPred)
		return acc, acc, acc, err
	case "macro", "weighted":
	default:
		return 0, 0, 0, errors.NewValidationError("average", `must be one of "macro", "weighted", "micro"`, average)
	}

	s, err := PrecisionRecallFSupport(yTrue, yPred)
	if err != nil {
		return 0, 0, 0, err
	}
	return s.Average(average)
}

// BalancedAccuracy は正解ラベルに現れるクラスの再現率の平均を計算する。
// 再現率はラベルの昇順に足し合わせるので、同じ入力には常に同じビット列を返す。
func BalancedAccuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BalancedAccuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	hits := map[int]float64{}
	counts := map[int]float64{}
	for i := 0; i < n; i++ {
		t := int(yTrue.AtVec(i))
		counts[t]++
		if int(yPred.AtVec(i)) == t {
			hits[t]++
		}
	}
	labels := make([]int, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	sum := 0.0
	for _, label := range labels {
		sum += hits[label] / counts[label]
	}
	return sum / float64(len(labels)), nil
}

// ClassificationReport はクラスごとの指標をテキスト表にまとめる。
// targetNames が与えられた場合はラベル値の位置にある名前を使う。
func ClassificationReport(yTrue, yPred *mat.VecDense, targetNames []string) (string, error) {
	s, err := PrecisionRecallFSupport(yTrue, yPred)
	if err != nil {
		return "", err
	}

	names := make([]string, len(s.Labels))
	width := len("weighted avg")
	for c, l := range s.Labels {
		names[c] = fmt.Sprintf("%d", l)
		if l >= 0 && l < len(targetNames) {
			names[c] = targetNames[l]
		}
		if len(names[c]) > width {
			width = len(names[c])
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for c := range s.Labels {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, names[c],
			s.Precision[c], s.Recall[c], s.F1[c], int(s.Support[c]))
	}

	acc, _ := Accuracy(yTrue, yPred)
	total := yTrue.Len()
	fmt.Fprintf(&b, "\n%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", acc, total)

	for _, avg := range []string{"macro", "weighted"} {
		p, r, f, _ := PrecisionRecallF1(yTrue, yPred, avg)
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, avg+" avg", p, r, f, total)
	}
	return b.String(), nil
}
