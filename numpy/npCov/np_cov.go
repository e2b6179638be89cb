// numpy风格的协方差矩阵工具:
// Cov2Cor 对应 cov / np.outer(v, v), v = sqrt(diag(cov))
// TriuFlatten / TriuFill 对应 np.triu_indices_from 的按行展开与回填(下三角镜像)
// StdPopulation 对应 np.std 默认 ddof=0
package npCov

import (
	"math"

	"econscale/infra/errCode"

	"gonum.org/v1/gonum/mat"
)

// TriuLen K阶对称矩阵上三角(含对角)元素个数
func TriuLen(k int) int { return k * (k + 1) / 2 }

// Cov2Cor 协方差矩阵转相关系数矩阵, 对角元为1
func Cov2Cor(cov *mat.SymDense) (*mat.SymDense, error) {
	k := cov.SymmetricDim()
	if k == 0 {
		return nil, errCode.EMPTY_VALUE.New("cov matrix is empty")
	}
	v := make([]float64, k)
	for i := 0; i < k; i++ {
		v[i] = math.Sqrt(cov.At(i, i))
	}
	cor := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			cor.SetSym(i, j, cov.At(i, j)/(v[i]*v[j]))
		}
	}
	return cor, nil
}

// TriuFlatten 上三角按行展开, 顺序与 np.triu_indices_from(m, k=0) 一致
func TriuFlatten(m *mat.SymDense) []float64 {
	k := m.SymmetricDim()
	out := make([]float64, 0, TriuLen(k))
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// TriuFill 用上三角展开回填K阶对称矩阵
func TriuFill(k int, tri []float64) (*mat.SymDense, error) {
	if len(tri) != TriuLen(k) {
		return nil, errCode.SHAPE_MISMATCH.New("triu length %d != expected %d", len(tri), TriuLen(k))
	}
	m := mat.NewSymDense(k, nil)
	pos := 0
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			m.SetSym(i, j, tri[pos])
			pos++
		}
	}
	return m, nil
}

// StdPopulation 总体标准差(除n), 与 np.std(ddof=0) 对齐; 空输入返回NaN
func StdPopulation(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range xs {
		mean += v
	}
	mean /= float64(n)
	ss := 0.0
	for _, v := range xs {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}
