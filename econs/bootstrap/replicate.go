// 单次replication的完整估计管线:
// 重采样构样本 -> 均值阶段SUR -> 方差阶段掩码SUR -> PSD修复 ->
// 相关矩阵/标准差 -> 规模经济指数标准差
// 点估计与bootstrap共用同一条路径, 仅重采样下标不同
package bootstrap

import (
	"fmt"
	"math"

	"econscale/econs/design"
	"econscale/econs/meanscale"
	"econscale/econs/scaleindex"
	"econscale/econs/varsys"
	"econscale/numpy/npCov"
	"econscale/numpy/npLinalg"

	"gonum.org/v1/gonum/mat"
)

// Summary 单次replication的全部输出, 各段长度固定
// 扁平化顺序: cov | covPD | cor | std | stdL | stdU | scaleS | scaleSM | scaleSF
type Summary struct {
	Cov   []float64 // T*P, 原始协方差上三角(行主序)
	CovPD []float64 // T*P, PSD修复后
	Cor   []float64 // T*P, 修复后的相关矩阵上三角
	Std   []float64 // T*K, sqrt(diag(covPD))
	StdL  []float64 // T*K, 下掩码(alpha*/2)
	StdU  []float64 // T*K, 上掩码(2alpha*)

	ScaleS  []float64 // T, 单人户子样本
	ScaleSM []float64 // T, 单身男性
	ScaleSF []float64 // T, 单身女性
}

// SummaryLen 扁平化后的总长度
func SummaryLen(k, t int) int {
	p := k * (k + 1) / 2
	return 3*t*p + 3*t*k + 3*t
}

// Flatten 按固定段序拼接
func (s *Summary) Flatten() []float64 {
	out := make([]float64, 0, len(s.Cov)*3+len(s.Std)*3+len(s.ScaleS)*3)
	out = append(out, s.Cov...)
	out = append(out, s.CovPD...)
	out = append(out, s.Cor...)
	out = append(out, s.Std...)
	out = append(out, s.StdL...)
	out = append(out, s.StdU...)
	out = append(out, s.ScaleS...)
	out = append(out, s.ScaleSM...)
	out = append(out, s.ScaleSF...)
	return out
}

// FieldLabels 与Flatten输出一一对应的字段名
func FieldLabels(cfg *design.Config) []string {
	K, T := cfg.NumGoods(), cfg.NumTypes()
	var labels []string
	pairSeg := func(prefix string) {
		for t := 0; t < T; t++ {
			for i := 0; i < K; i++ {
				for j := i; j < K; j++ {
					labels = append(labels, fmt.Sprintf("%s%d.%d_h%d", prefix, cfg.Shareable[i], cfg.Shareable[j], t+1))
				}
			}
		}
	}
	goodSeg := func(prefix string) {
		for t := 0; t < T; t++ {
			for k := 0; k < K; k++ {
				labels = append(labels, fmt.Sprintf("%s%d_h%d", prefix, cfg.Shareable[k], t+1))
			}
		}
	}
	typeSeg := func(prefix string) {
		for t := 0; t < T; t++ {
			labels = append(labels, fmt.Sprintf("%s_h%d", prefix, t+1))
		}
	}
	pairSeg("cov")
	pairSeg("covPD")
	pairSeg("cor")
	goodSeg("std")
	goodSeg("stdL")
	goodSeg("stdU")
	typeSeg("scaleS")
	typeSeg("scaleSM")
	typeSeg("scaleSF")
	return labels
}

// Replicate 跑一次完整管线; resample为nil即点估计
func Replicate(cfg *design.Config, base *mat.Dense, masks *varsys.Masks, resample []int) (*Summary, error) {
	s, err := design.Build(cfg, base, resample)
	if err != nil {
		return nil, err
	}
	mean, err := meanscale.Estimate(s)
	if err != nil {
		return nil, err
	}
	vres, err := varsys.Estimate(s, mean, masks)
	if err != nil {
		return nil, err
	}

	K, T, P := cfg.NumGoods(), cfg.NumTypes(), cfg.NumPairs()
	sum := &Summary{
		Cov:     make([]float64, 0, T*P),
		CovPD:   make([]float64, 0, T*P),
		Cor:     make([]float64, 0, T*P),
		Std:     make([]float64, 0, T*K),
		StdL:    make([]float64, 0, T*K),
		StdU:    make([]float64, 0, T*K),
		ScaleS:  make([]float64, 0, T),
		ScaleSM: make([]float64, 0, T),
		ScaleSF: make([]float64, 0, T),
	}

	subsetS := make([]bool, s.N)
	subsetSM := make([]bool, s.N)
	subsetSF := make([]bool, s.N)
	for i := 0; i < s.N; i++ {
		subsetS[i] = s.TIdx[i] < 2
		subsetSM[i] = s.TIdx[i] == 0
		subsetSF[i] = s.TIdx[i] == 1
	}

	for t := 0; t < T; t++ {
		covPD, err := npLinalg.NearestPD(vres.Cov[t])
		if err != nil {
			return nil, err
		}
		covPDL, err := npLinalg.NearestPD(vres.CovL[t])
		if err != nil {
			return nil, err
		}
		covPDU, err := npLinalg.NearestPD(vres.CovU[t])
		if err != nil {
			return nil, err
		}
		cor, err := npCov.Cov2Cor(covPD)
		if err != nil {
			return nil, err
		}

		sum.Cov = append(sum.Cov, npCov.TriuFlatten(vres.Cov[t])...)
		sum.CovPD = append(sum.CovPD, npCov.TriuFlatten(covPD)...)
		sum.Cor = append(sum.Cor, npCov.TriuFlatten(cor)...)
		for k := 0; k < K; k++ {
			sum.Std = append(sum.Std, math.Sqrt(covPD.At(k, k)))
			sum.StdL = append(sum.StdL, math.Sqrt(covPDL.At(k, k)))
			sum.StdU = append(sum.StdU, math.Sqrt(covPDU.At(k, k)))
		}

		for _, sub := range []struct {
			mask []bool
			dst  *[]float64
		}{
			{subsetS, &sum.ScaleS},
			{subsetSM, &sum.ScaleSM},
			{subsetSF, &sum.ScaleSF},
		} {
			v, err := scaleindex.Std(mean.Barten[t], covPD, s.WAll, s.N, K+1, sub.mask)
			if err != nil {
				return nil, err
			}
			*sub.dst = append(*sub.dst, v)
		}
	}
	return sum, nil
}

// PointEstimate 全样本(恒等采样)的管线输出
func PointEstimate(cfg *design.Config, base *mat.Dense, masks *varsys.Masks) (*Summary, error) {
	return Replicate(cfg, base, masks, nil)
}
