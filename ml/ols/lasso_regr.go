package ols

// 带逐系数惩罚权重的线性LASSO(坐标下降):
//   目标: (1/(2n))||y - Xβ||² + α·Σ_j s_j·|β_j|
// s_j 为惩罚权重, s_j=0 的列不受惩罚(方差方程里的交叉积项必须保留即属此类)
// X不加截距不标准化, 调用方负责量纲
//
// LassoWeightedCV 在几何alpha路径上做K折交叉验证选 alpha

import (
	"math"
	"math/rand"
	"sort"

	"econscale/infra/errCode"

	"gonum.org/v1/gonum/mat"
)

// softThreshold: S(z, a) = sign(z) * max(|z|-a, 0)
func softThreshold(z, a float64) float64 {
	if z > a {
		return z - a
	}
	if z < -a {
		return z + a
	}
	return 0
}

// LassoWeighted 坐标下降求解, 残差增量更新
func LassoWeighted(matX *mat.Dense, matY *mat.VecDense, alpha float64, penalty []float64, tol float64, maxIter int) ([]float64, error) {
	n, p := matX.Dims()
	if n == 0 || p == 0 {
		return nil, errCode.EMPTY_VALUE.New("empty design matrix")
	}
	if matY.Len() != n {
		return nil, errCode.SHAPE_MISMATCH.New("y length %d != rows %d", matY.Len(), n)
	}
	if len(penalty) != p {
		return nil, errCode.SHAPE_MISMATCH.New("penalty length %d != cols %d", len(penalty), p)
	}
	if alpha < 0 {
		return nil, errCode.INVALID_VALUE.New("alpha must be >= 0")
	}

	// 列平方和 gj = ||X_j||²/n; 全零列系数恒为0
	gj := make([]float64, p)
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			v := matX.At(i, j)
			sum += v * v
		}
		gj[j] = sum / float64(n)
	}

	beta := make([]float64, p)
	// r = y - Xβ, β=0 起步
	r := make([]float64, n)
	for i := 0; i < n; i++ {
		r[i] = matY.AtVec(i)
	}

	for it := 0; it < maxIter; it++ {
		maxChange := 0.0
		for j := 0; j < p; j++ {
			if gj[j] == 0 {
				continue
			}
			// ρ_j = (1/n)·X_jᵀ(r + X_j β_j)
			rho := 0.0
			for i := 0; i < n; i++ {
				rho += matX.At(i, j) * r[i]
			}
			rho = rho/float64(n) + gj[j]*beta[j]

			newB := softThreshold(rho, alpha*penalty[j]) / gj[j]
			if math.IsNaN(newB) || math.IsInf(newB, 0) {
				newB = 0
			}
			if d := newB - beta[j]; d != 0 {
				for i := 0; i < n; i++ {
					r[i] -= matX.At(i, j) * d
				}
				if ad := math.Abs(d); ad > maxChange {
					maxChange = ad
				}
				beta[j] = newB
			}
		}
		if maxChange < tol {
			break
		}
	}
	return beta, nil
}

type LassoCVResult struct {
	AlphaBest float64
	Alphas    []float64
	CVErrors  []float64 // 各alpha的折均MSE
	Coeffs    []float64 // AlphaBest 下的全样本解
}

const (
	lassoTol     = 1e-5
	lassoMaxIter = 10000
)

// LassoWeightedCV K折交叉验证选alpha
// 路径从 alphaMax(全部受罚系数恰好为0的临界值)几何下降到 alphaMax*1e-3
func LassoWeightedCV(matX *mat.Dense, matY *mat.VecDense, penalty []float64, nAlphas, kFolds int, seed int64) (LassoCVResult, error) {
	n, p := matX.Dims()
	if nAlphas < 2 || kFolds < 2 {
		return LassoCVResult{}, errCode.INVALID_VALUE.New("nAlphas and kFolds must be >= 2")
	}
	if n < kFolds {
		return LassoCVResult{}, errCode.INVALID_VALUE.New("sample size %d smaller than folds %d", n, kFolds)
	}
	if len(penalty) != p {
		return LassoCVResult{}, errCode.SHAPE_MISMATCH.New("penalty length %d != cols %d", len(penalty), p)
	}

	// alphaMax = max_j |X_jᵀy| / (n·s_j), 仅对受罚列
	alphaMax := 0.0
	for j := 0; j < p; j++ {
		if penalty[j] <= 0 {
			continue
		}
		dot := 0.0
		for i := 0; i < n; i++ {
			dot += matX.At(i, j) * matY.AtVec(i)
		}
		if v := math.Abs(dot) / (float64(n) * penalty[j]); v > alphaMax {
			alphaMax = v
		}
	}
	if alphaMax == 0 {
		return LassoCVResult{}, errCode.INVALID_VALUE.New("all penalized columns are orthogonal to y or zero")
	}

	alphas := make([]float64, nAlphas)
	ratio := math.Pow(1e-3, 1/float64(nAlphas-1))
	for i := range alphas {
		alphas[i] = alphaMax * math.Pow(ratio, float64(i))
	}

	// 打乱后切K折
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	folds := make([][]int, kFolds)
	for i, idx := range perm {
		f := i % kFolds
		folds[f] = append(folds[f], idx)
	}
	for _, f := range folds {
		sort.Ints(f)
	}

	cvErr := make([]float64, nAlphas)
	for f := 0; f < kFolds; f++ {
		test := folds[f]
		inTest := make([]bool, n)
		for _, idx := range test {
			inTest[idx] = true
		}
		trainX := mat.NewDense(n-len(test), p, nil)
		trainY := mat.NewVecDense(n-len(test), nil)
		row := 0
		for i := 0; i < n; i++ {
			if inTest[i] {
				continue
			}
			for j := 0; j < p; j++ {
				trainX.Set(row, j, matX.At(i, j))
			}
			trainY.SetVec(row, matY.AtVec(i))
			row++
		}

		for a, alpha := range alphas {
			beta, err := LassoWeighted(trainX, trainY, alpha, penalty, lassoTol, lassoMaxIter)
			if err != nil {
				return LassoCVResult{}, err
			}
			mse := 0.0
			for _, i := range test {
				pred := 0.0
				for j := 0; j < p; j++ {
					pred += matX.At(i, j) * beta[j]
				}
				d := matY.AtVec(i) - pred
				mse += d * d
			}
			cvErr[a] += mse / float64(len(test))
		}
	}

	best := 0
	for a := 1; a < nAlphas; a++ {
		if cvErr[a] < cvErr[best] {
			best = a
		}
	}
	coeffs, err := LassoWeighted(matX, matY, alphas[best], penalty, lassoTol, lassoMaxIter)
	if err != nil {
		return LassoCVResult{}, err
	}
	for a := range cvErr {
		cvErr[a] /= float64(kFolds)
	}
	return LassoCVResult{
		AlphaBest: alphas[best],
		Alphas:    alphas,
		CVErrors:  cvErr,
		Coeffs:    coeffs,
	}, nil
}
