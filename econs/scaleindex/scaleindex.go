// 规模经济指数标准差的delta法计算
// 指数 S = aᵀw, a为(Barten尺度, 1), w为含nonshareable的预算份额向量
// Var(S) = aᵀ·Cov(w)·a + w̄ᵀ·Cov(a)·w̄, Cov(a)对nonshareable维零填充
package scaleindex

import (
	"math"

	"econscale/infra/errCode"
	"econscale/infra/staticLog"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Std 子样本(如单人户)上的指数标准差
// barten为某一类型的K个Barten尺度, covPD为该类型修复后的K×K协方差,
// wAll为n×kAll(kAll=K+1)行主序份额矩阵, subset标记参与均值/协方差的行
func Std(barten []float64, covPD *mat.SymDense, wAll []float64, n, kAll int, subset []bool) (float64, error) {
	k := len(barten)
	if covPD.SymmetricDim() != k {
		return 0, errCode.SHAPE_MISMATCH.New("covariance dim %d != barten length %d", covPD.SymmetricDim(), k)
	}
	if kAll != k+1 {
		return 0, errCode.SHAPE_MISMATCH.New("share columns %d != goods+1 = %d", kAll, k+1)
	}
	if len(wAll) != n*kAll || len(subset) != n {
		return 0, errCode.SHAPE_MISMATCH.New("share matrix or subset mask has wrong length")
	}

	m := 0
	for _, in := range subset {
		if in {
			m++
		}
	}
	if m < 2 {
		return 0, errCode.DEGENERATE_SAMPLE.New("subset has %d observations, need >= 2 for covariance", m)
	}

	sub := mat.NewDense(m, kAll, nil)
	row := 0
	for i := 0; i < n; i++ {
		if !subset[i] {
			continue
		}
		for j := 0; j < kAll; j++ {
			sub.Set(row, j, wAll[i*kAll+j])
		}
		row++
	}

	wBar := make([]float64, kAll)
	for j := 0; j < kAll; j++ {
		wBar[j] = stat.Mean(mat.Col(nil, j, sub), nil)
	}
	var wCov mat.SymDense
	stat.CovarianceMatrix(&wCov, sub, nil) // 样本协方差, 除m-1

	aFull := make([]float64, kAll)
	copy(aFull, barten)
	aFull[k] = 1

	// aᵀ·Cov(w)·a
	v1 := 0.0
	for i := 0; i < kAll; i++ {
		for j := 0; j < kAll; j++ {
			v1 += aFull[i] * wCov.At(i, j) * aFull[j]
		}
	}
	// w̄ᵀ·Cov(a)·w̄, Cov(a)的最后一行列为0
	v2 := 0.0
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			v2 += wBar[i] * covPD.At(i, j) * wBar[j]
		}
	}

	v := v1 + v2
	if v < 0 || math.IsNaN(v) {
		staticLog.Log.Warnf("[scaleindex] negative or undefined variance %v, returning NaN", v)
		return math.NaN(), nil
	}
	return math.Sqrt(v), nil
}
