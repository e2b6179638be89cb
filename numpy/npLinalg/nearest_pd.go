// 最近正定矩阵投影(Higham 1988):
//  1. B = (A+Aᵀ)/2 对称化
//  2. SVD取极分解的对称因子 H = VΣVᵀ, A2 = (B+H)/2 再对称化
//  3. 不正定时按最小特征值逐步加抖动 I·(-λmin·k² + spacing), 直到Cholesky通过
// 结果确定性, 特征值非负(对角元可安全开方作标准差)
package npLinalg

import (
	"math"

	"econscale/infra/errCode"
	"econscale/infra/staticLog"

	"gonum.org/v1/gonum/mat"
)

const maxJitterIter = 100

// NearestPD 返回与A最接近的(Frobenius范数意义下)正定对称矩阵
func NearestPD(a *mat.SymDense) (*mat.SymDense, error) {
	k := a.SymmetricDim()
	if k == 0 {
		return nil, errCode.EMPTY_VALUE.New("input matrix is empty")
	}

	// SymDense已对称, 直接做SVD极分解
	b := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			b.Set(i, j, a.At(i, j))
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(b, mat.SVDThin); !ok {
		return nil, errCode.NUMERICAL.New("svd factorization failed in nearest-PD projection")
	}
	var v mat.Dense
	svd.VTo(&v)
	sigma := svd.Values(nil)

	// H = V Σ Vᵀ
	vs := mat.NewDense(k, k, nil)
	vs.CloneFrom(&v)
	for j := 0; j < k; j++ {
		for i := 0; i < k; i++ {
			vs.Set(i, j, v.At(i, j)*sigma[j])
		}
	}
	var h mat.Dense
	h.Mul(vs, v.T())

	// A3 = ((B+H)/2 的对称化)
	a3 := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			u := (b.At(i, j) + h.At(i, j)) / 2
			l := (b.At(j, i) + h.At(j, i)) / 2
			a3.SetSym(i, j, (u+l)/2)
		}
	}
	if isPD(a3) {
		return a3, nil
	}

	// 抖动循环
	normA := mat.Norm(b, 2)
	spacing := math.Nextafter(normA, math.Inf(1)) - normA
	if spacing == 0 {
		spacing = math.SmallestNonzeroFloat64
	}
	var eig mat.EigenSym
	for it := 1; it <= maxJitterIter; it++ {
		if ok := eig.Factorize(a3, false); !ok {
			return nil, errCode.NUMERICAL.New("eigen decomposition failed in nearest-PD jitter loop")
		}
		vals := eig.Values(nil)
		minEig := vals[0]
		for _, ev := range vals[1:] {
			if ev < minEig {
				minEig = ev
			}
		}
		shift := -minEig*float64(it)*float64(it) + spacing
		for i := 0; i < k; i++ {
			a3.SetSym(i, i, a3.At(i, i)+shift)
		}
		if isPD(a3) {
			if it > 10 {
				staticLog.Log.Warnf("nearest-PD projection needed %d jitter iterations", it)
			}
			return a3, nil
		}
	}
	return nil, errCode.NUMERICAL.New("nearest-PD projection did not converge in %d iterations", maxJitterIter)
}

// isPD Cholesky能分解即认为正定, 与参考实现的判据一致
func isPD(m *mat.SymDense) bool {
	var chol mat.Cholesky
	return chol.Factorize(m)
}
