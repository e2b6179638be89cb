// 均值阶段: 份额方程SUR与Barten尺度
// 每个shareable good一条方程, 因变量为gt去均值后的预算份额,
// 回归元为 er_k·ỹ 与t_single指示的交互(s, h1..hT), 再接
// 去均值人口特征与t指示的交互(sm, sf, h1..hT; t主序d次序)
// Barten尺度 a[t][k] = b_{h_t,k} / b_{s,k}
package meanscale

import (
	"fmt"
	"math"

	"econscale/econs/design"
	"econscale/infra/errCode"
	"econscale/infra/staticLog"
	"econscale/ml/sur"

	"gonum.org/v1/gonum/mat"
)

type Result struct {
	System *sur.SystemResult
	BS     []float64   // K, 单人户的er·y系数 b_s
	Barten [][]float64 // T x K, a[t][k] = b_{h_t,k}/b_{s,k}
}

// Estimate 拟合份额方程系统并计算Barten尺度
func Estimate(s *design.Sample) (*Result, error) {
	cfg := s.Cfg
	K, T, D := cfg.NumGoods(), cfg.NumTypes(), cfg.NumDemog()
	nCols := (1 + T) + (2+T)*D

	eqs := make([]sur.Equation, K)
	for k := 0; k < K; k++ {
		goodID := cfg.Shareable[k]
		exog := mat.NewDense(s.N, nCols, nil)
		tags := make([]sur.CoeffTag, 0, nCols)

		// er_k·ỹ ⊗ t_single: 列0=s, 列1..T=h1..hT
		for j := 0; j <= T; j++ {
			tags = append(tags, sur.CoeffTag{
				Name: fmt.Sprintf("er%dy_%s", goodID, cfg.SingleLabel(j)),
				Role: sur.RoleERY,
				Type: cfg.SingleLabel(j),
				Good: k,
			})
		}
		// z̃ ⊗ t: t主序(sm, sf, h1..hT), d次序
		for t := 0; t < 2+T; t++ {
			for d := 0; d < D; d++ {
				tags = append(tags, sur.CoeffTag{
					Name: fmt.Sprintf("z%d_%s", cfg.Demog[d], cfg.TypeLabel(t)),
					Role: sur.RoleDemog,
					Type: cfg.TypeLabel(t),
					Good: -1,
				})
			}
		}

		for i := 0; i < s.N; i++ {
			exog.Set(i, s.TSingleIdx(i), s.Ery[i*K+k])
			base := 1 + T + s.TIdx[i]*D
			for d := 0; d < D; d++ {
				exog.Set(i, base+d, s.ZDemean[i*D+d])
			}
		}

		dep := mat.NewVecDense(s.N, nil)
		for i := 0; i < s.N; i++ {
			dep.SetVec(i, s.WDemean[i*K+k])
		}
		eqs[k] = sur.Equation{
			Name: fmt.Sprintf("w%d", goodID),
			Dep:  dep,
			Exog: exog,
			Tags: tags,
		}
	}

	sys, err := sur.FitSystem(eqs)
	if err != nil {
		return nil, err
	}

	res := &Result{System: sys, BS: make([]float64, K), Barten: make([][]float64, T)}
	for t := range res.Barten {
		res.Barten[t] = make([]float64, K)
	}
	for k := 0; k < K; k++ {
		bs, ok := sys.CoeffIn(k, func(tag sur.CoeffTag) bool {
			return tag.Role == sur.RoleERY && tag.Type == "s"
		})
		if !ok {
			return nil, errCode.NUMERICAL.New("equation %s has no single-household er·y coefficient", sys.Eqs[k].Name)
		}
		res.BS[k] = bs
		for t := 0; t < T; t++ {
			label := fmt.Sprintf("h%d", t+1)
			bh, ok := sys.CoeffIn(k, func(tag sur.CoeffTag) bool {
				return tag.Role == sur.RoleERY && tag.Type == label
			})
			if !ok {
				return nil, errCode.NUMERICAL.New("equation %s has no %s er·y coefficient", sys.Eqs[k].Name, label)
			}
			a := bh / bs
			if bs == 0 || math.IsNaN(a) || math.IsInf(a, 0) {
				staticLog.Log.Warnf("[meanscale] degenerate barten scale for good %d type %s: bh=%v bs=%v", cfg.Shareable[k], label, bh, bs)
				a = math.NaN()
			}
			res.Barten[t][k] = a
		}
	}
	return res, nil
}
