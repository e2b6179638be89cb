package ols

import (
	"math"

	"econscale/infra/errCode"
	"econscale/infra/staticLog"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

type MultiLinearModel struct {
	Coeffs   []float64 // 回归系数
	SE       []float64 // 标准误
	TStats   []float64 // t统计量
	PValues  []float64 // p值（双尾）
	Resids   []float64 // 残差
	Sigma2   float64   // 残差方差
	RSquared float64
}

// MultiRegressionMat 多元OLS, β = (X'X)⁻¹X'Y
// X'X不可逆时退化为SVD伪逆(共线的方差方程回归元会走到这里)
func MultiRegressionMat(matX *mat.Dense, matY *mat.VecDense) (MultiLinearModel, error) {
	n, k := matX.Dims()
	if n == 0 || k == 0 {
		return MultiLinearModel{}, errCode.EMPTY_VALUE.New("empty design matrix")
	}
	if matY.Len() != n {
		return MultiLinearModel{}, errCode.SHAPE_MISMATCH.New("y length %d != rows %d", matY.Len(), n)
	}
	if n <= k {
		return MultiLinearModel{}, errCode.INVALID_VALUE.New("df = n-k = %d 非法: 样本数必须大于参数数", n-k)
	}

	var XT mat.Dense
	XT.CloneFrom(matX.T())

	var XTX mat.Dense
	XTX.Mul(&XT, matX)

	var invXTX mat.Dense
	if err := invXTX.Inverse(&XTX); err != nil {
		staticLog.Log.Infof("warning XTX矩阵不可逆, 走伪逆: %s", err)
		pinv, errSVD := pseudoInverse(&XTX)
		if errSVD != nil {
			return MultiLinearModel{}, errSVD
		}
		invXTX.CloneFrom(pinv)
	}

	var XTY mat.VecDense
	XTY.MulVec(&XT, matY)

	var beta mat.VecDense
	beta.MulVec(&invXTX, &XTY)

	// 预测值 & 残差
	Yhat := mat.NewVecDense(n, nil)
	Yhat.MulVec(matX, &beta)
	resid := mat.NewVecDense(n, nil)
	resid.SubVec(matY, Yhat)

	RSS := mat.Dot(resid, resid)
	sigma2 := RSS / float64(n-k)

	SE := make([]float64, k)
	tStats := make([]float64, k)
	for i := 0; i < k; i++ {
		SE[i] = math.Sqrt(sigma2 * invXTX.At(i, i))
		tStats[i] = beta.AtVec(i) / SE[i]
	}

	// p值（双尾）, Student-t
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - k)}
	pValues := make([]float64, k)
	for i := 0; i < k; i++ {
		pValues[i] = 2 * tdist.Survival(math.Abs(tStats[i]))
	}

	Ymean := mat.Sum(matY) / float64(n)
	TSS := 0.0
	for i := 0; i < n; i++ {
		d := matY.AtVec(i) - Ymean
		TSS += d * d
	}
	RSq := 0.0
	if TSS > 0 {
		RSq = 1 - RSS/TSS
	}

	coeffs := make([]float64, k)
	for i := 0; i < k; i++ {
		coeffs[i] = beta.AtVec(i)
	}
	return MultiLinearModel{
		Coeffs:   coeffs,
		SE:       SE,
		TStats:   tStats,
		PValues:  pValues,
		Resids:   resid.RawVector().Data,
		Sigma2:   sigma2,
		RSquared: RSq,
	}, nil
}

// 用SVD 求解广义逆矩阵
func pseudoInverse(A *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	ok := svd.Factorize(A, mat.SVDThin)
	if !ok {
		return nil, errCode.NUMERICAL.New("SVD分解失败")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	sigma := svd.Values(nil)
	m, n := A.Dims()
	sInv := mat.NewDense(n, m, nil)

	tol := 1e-12 // 小奇异值截断阈值
	for i, val := range sigma {
		if val > tol {
			sInv.Set(i, i, 1.0/val)
		}
	}

	// A⁺ = V * Σ⁺ * Uᵀ
	var temp mat.Dense
	temp.Mul(&v, sInv)
	var uT mat.Dense
	uT.CloneFrom(u.T())

	var pinv mat.Dense
	pinv.Mul(&temp, &uT)

	return &pinv, nil
}
