// 方差阶段: Barten尺度二阶矩的交叉积回归
//
// 以均值阶段系数在原始(未去均值)er·y与z上重建残差, gt内去均值后构造
// good对(i<=j)的残差交叉积, 对每个多人户类型在g组内去均值回归:
//   res_i·res_j ~ {g_c × (bery_i+bery_j)} + bery_i·bery_j
// 交叉积项bery_i·bery_j免LASSO惩罚, 其系数即协方差矩阵的上三角元
// 同一套候选列上按三组掩码(alpha*, alpha*/2, 2alpha*)各拟合一个系统
package varsys

import (
	"fmt"

	"econscale/econs/demean"
	"econscale/econs/design"
	"econscale/econs/meanscale"
	"econscale/infra/errCode"
	"econscale/ml/ols"
	"econscale/ml/sur"
	"econscale/numpy/npCov"

	"gonum.org/v1/gonum/mat"
)

// Masks 三组LASSO选列结果, 下标 tt*P+p (类型主序, good对次序)
// 每个条目是保留列名列表, 顺序与候选列一致
type Masks struct {
	Central [][]string
	Lower   [][]string
	Upper   [][]string
}

// Result 每类型的原始协方差矩阵(未做PSD修复), 下标为类型
type Result struct {
	Cov  []*mat.SymDense
	CovL []*mat.SymDense
	CovU []*mat.SymDense
}

// frame 方差阶段的全样本派生变量
type frame struct {
	s     *design.Sample
	pairI []int // P
	pairJ []int

	res      []float64 // N*K, 重建残差(gt去均值后)
	bery     []float64 // N*K, er_k·y·b_s[k]
	resCross []float64 // N*P
	beryProd []float64 // N*P
	berySum  []float64 // N*P
}

func buildFrame(s *design.Sample, mean *meanscale.Result) (*frame, error) {
	cfg := s.Cfg
	K, T, D, P := cfg.NumGoods(), cfg.NumTypes(), cfg.NumDemog(), cfg.NumPairs()

	f := &frame{
		s:        s,
		bery:     make([]float64, s.N*K),
		resCross: make([]float64, s.N*P),
		beryProd: make([]float64, s.N*P),
		berySum:  make([]float64, s.N*P),
	}
	for i := 0; i < K; i++ {
		for j := i; j < K; j++ {
			f.pairI = append(f.pairI, i)
			f.pairJ = append(f.pairJ, j)
		}
	}

	// 每行只有所属t_single/t指示块的列非零, 拟合值直接按下标取系数
	fres := make([]float64, s.N*K)
	for k := 0; k < K; k++ {
		coeffs := mean.System.Eqs[k].Model.Coeffs
		if len(coeffs) != (1+T)+(2+T)*D {
			return nil, errCode.SHAPE_MISMATCH.New("equation %s has %d coefficients, expected %d",
				mean.System.Eqs[k].Name, len(coeffs), (1+T)+(2+T)*D)
		}
		for i := 0; i < s.N; i++ {
			fitted := coeffs[s.TSingleIdx(i)] * s.Er[i*K+k] * s.Y[i]
			zBase := 1 + T + s.TIdx[i]*D
			for d := 0; d < D; d++ {
				fitted += coeffs[zBase+d] * s.Z[i*D+d]
			}
			fres[i*K+k] = s.W[i*K+k] - fitted
			f.bery[i*K+k] = s.Er[i*K+k] * s.Y[i] * mean.BS[k]
		}
	}
	res, err := demean.ByGroup(fres, s.N, K, s.GT)
	if err != nil {
		return nil, err
	}
	f.res = res

	for i := 0; i < s.N; i++ {
		for p := 0; p < P; p++ {
			a, b := f.pairI[p], f.pairJ[p]
			f.resCross[i*P+p] = res[i*K+a] * res[i*K+b]
			f.beryProd[i*P+p] = f.bery[i*K+a] * f.bery[i*K+b]
			f.berySum[i*P+p] = f.bery[i*K+a] + f.bery[i*K+b]
		}
	}
	return f, nil
}

// candidate 某一good对在某类型子样本上的候选回归元(已在g内去均值)
type candidate struct {
	tag sur.CoeffTag
	col []float64
}

// typeView 单一多人户类型的子样本视图
type typeView struct {
	m    int         // 子样本行数
	dep  [][]float64 // P, g内去均值后的残差交叉积
	cand [][]candidate
}

func (f *frame) prodName(p int) string {
	cfg := f.s.Cfg
	return fmt.Sprintf("ber%d.%dy_prod", cfg.Shareable[f.pairI[p]], cfg.Shareable[f.pairJ[p]])
}

func (f *frame) groupSumName(g, p int) string {
	cfg := f.s.Cfg
	return fmt.Sprintf("g%d_ber%d.%dy_sum", g+1, cfg.Shareable[f.pairI[p]], cfg.Shareable[f.pairJ[p]])
}

// typeData 取类型t(0起)的couples子样本, 组内去均值并组装候选列
// g组至少2行(重复行计数)才生成对应的组交互列
func (f *frame) typeData(t int) (*typeView, error) {
	s := f.s
	P := s.Cfg.NumPairs()

	var rows []int
	for i := 0; i < s.N; i++ {
		if s.TIdx[i] == 2+t {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil, errCode.DEGENERATE_SAMPLE.New("no observations for type h%d", t+1)
	}

	groupRows := make(map[int][]int) // g -> 子样本内行位置
	for pos, i := range rows {
		groupRows[s.GIdx[i]] = append(groupRows[s.GIdx[i]], pos)
	}
	var gIncluded []int
	for g := 0; g < s.Cfg.NumGroups(); g++ {
		if len(groupRows[g]) >= 2 {
			gIncluded = append(gIncluded, g)
		}
	}

	dm := func(col []float64) []float64 {
		out := make([]float64, len(col))
		for _, members := range groupRows {
			mean := 0.0
			for _, pos := range members {
				mean += col[pos]
			}
			mean /= float64(len(members))
			for _, pos := range members {
				out[pos] = col[pos] - mean
			}
		}
		return out
	}

	tv := &typeView{m: len(rows), dep: make([][]float64, P), cand: make([][]candidate, P)}
	for p := 0; p < P; p++ {
		depRaw := make([]float64, len(rows))
		prodRaw := make([]float64, len(rows))
		sumRaw := make([]float64, len(rows))
		for pos, i := range rows {
			depRaw[pos] = f.resCross[i*P+p]
			prodRaw[pos] = f.beryProd[i*P+p]
			sumRaw[pos] = f.berySum[i*P+p]
		}
		tv.dep[p] = dm(depRaw)

		cands := make([]candidate, 0, len(gIncluded)+1)
		for _, g := range gIncluded {
			col := make([]float64, len(rows))
			for _, pos := range groupRows[g] {
				col[pos] = sumRaw[pos]
			}
			cands = append(cands, candidate{
				tag: sur.CoeffTag{Name: f.groupSumName(g, p), Role: sur.RoleGroupCross, Type: fmt.Sprintf("h%d", t+1), Good: -1},
				col: dm(col),
			})
		}
		cands = append(cands, candidate{
			tag: sur.CoeffTag{Name: f.prodName(p), Role: sur.RoleCrossProd, Type: fmt.Sprintf("h%d", t+1), Good: -1},
			col: dm(prodRaw),
		})
		tv.cand[p] = cands
	}
	return tv, nil
}

// SelectMasks 在当前样本上对每个(类型, good对)做交叉验证LASSO, 生成三组掩码
// 交叉积列惩罚权重为0, 必然保留; 掩码记录列名而非下标, 重采样后候选列
// 集合变化时仍可对齐
func SelectMasks(s *design.Sample, mean *meanscale.Result, nAlphas, kFolds int, seed int64) (*Masks, error) {
	f, err := buildFrame(s, mean)
	if err != nil {
		return nil, err
	}
	cfg := s.Cfg
	T, P := cfg.NumTypes(), cfg.NumPairs()

	m := &Masks{
		Central: make([][]string, T*P),
		Lower:   make([][]string, T*P),
		Upper:   make([][]string, T*P),
	}
	for t := 0; t < T; t++ {
		tv, err := f.typeData(t)
		if err != nil {
			return nil, err
		}
		for p := 0; p < P; p++ {
			nc := len(tv.cand[p])
			exog := mat.NewDense(tv.m, nc, nil)
			penalty := make([]float64, nc)
			for c, cand := range tv.cand[p] {
				for i := 0; i < tv.m; i++ {
					exog.Set(i, c, cand.col[i])
				}
				if cand.tag.Role != sur.RoleCrossProd {
					penalty[c] = 1
				}
			}
			dep := mat.NewVecDense(tv.m, tv.dep[p])

			cv, err := ols.LassoWeightedCV(exog, dep, penalty, nAlphas, kFolds, seed)
			if err != nil {
				return nil, errCode.NUMERICAL.Wrap(err, "lasso cv failed for type h%d pair %s", t+1, f.prodName(p))
			}
			betaL, err := ols.LassoWeighted(exog, dep, cv.AlphaBest*0.5, penalty, 1e-5, 10000)
			if err != nil {
				return nil, err
			}
			betaU, err := ols.LassoWeighted(exog, dep, cv.AlphaBest*2, penalty, 1e-5, 10000)
			if err != nil {
				return nil, err
			}

			pick := func(beta []float64) []string {
				var names []string
				for c, b := range beta {
					if b != 0 {
						names = append(names, tv.cand[p][c].tag.Name)
					}
				}
				return names
			}
			m.Central[t*P+p] = pick(cv.Coeffs)
			m.Lower[t*P+p] = pick(betaL)
			m.Upper[t*P+p] = pick(betaU)
		}
	}
	return m, nil
}

// Estimate 按掩码拟合三组方差方程系统并组装每类型协方差矩阵(原始, 未修复)
func Estimate(s *design.Sample, mean *meanscale.Result, masks *Masks) (*Result, error) {
	cfg := s.Cfg
	T, K, P := cfg.NumTypes(), cfg.NumGoods(), cfg.NumPairs()
	if len(masks.Central) != T*P || len(masks.Lower) != T*P || len(masks.Upper) != T*P {
		return nil, errCode.SHAPE_MISMATCH.New("mask list length mismatch: want %d entries per system", T*P)
	}
	f, err := buildFrame(s, mean)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Cov:  make([]*mat.SymDense, T),
		CovL: make([]*mat.SymDense, T),
		CovU: make([]*mat.SymDense, T),
	}
	for t := 0; t < T; t++ {
		tv, err := f.typeData(t)
		if err != nil {
			return nil, err
		}
		fit := func(mask [][]string) (*mat.SymDense, error) {
			eqs := make([]sur.Equation, P)
			for p := 0; p < P; p++ {
				eq, err := f.maskedEquation(tv, t, p, mask[t*P+p])
				if err != nil {
					return nil, err
				}
				eqs[p] = eq
			}
			sys, err := sur.FitSystem(eqs)
			if err != nil {
				return nil, err
			}
			tri := make([]float64, P)
			for p := 0; p < P; p++ {
				v, ok := sys.CoeffIn(p, func(tag sur.CoeffTag) bool { return tag.Role == sur.RoleCrossProd })
				if !ok {
					return nil, errCode.NUMERICAL.New("no cross-product coefficient in equation %s", sys.Eqs[p].Name)
				}
				tri[p] = v
			}
			return npCov.TriuFill(K, tri)
		}

		if out.Cov[t], err = fit(masks.Central); err != nil {
			return nil, err
		}
		if out.CovL[t], err = fit(masks.Lower); err != nil {
			return nil, err
		}
		if out.CovU[t], err = fit(masks.Upper); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// maskedEquation 按掩码顺序取候选列交集构造单方程
// 掩码必须保留交叉积列, 否则协方差元无从读出, 直接报错
func (f *frame) maskedEquation(tv *typeView, t, p int, mask []string) (sur.Equation, error) {
	byName := make(map[string]candidate, len(tv.cand[p]))
	for _, c := range tv.cand[p] {
		byName[c.tag.Name] = c
	}
	var picked []candidate
	hasProd := false
	for _, name := range mask {
		c, ok := byName[name]
		if !ok {
			continue // 该列在本次(重)采样中无对应g组
		}
		picked = append(picked, c)
		if c.tag.Role == sur.RoleCrossProd {
			hasProd = true
		}
	}
	if !hasProd {
		return sur.Equation{}, errCode.INVALID_VALUE.New(
			"mask for type h%d pair %s drops the penalty-exempt cross-product column", t+1, f.prodName(p))
	}

	exog := mat.NewDense(tv.m, len(picked), nil)
	tags := make([]sur.CoeffTag, len(picked))
	for c, cand := range picked {
		tags[c] = cand.tag
		for i := 0; i < tv.m; i++ {
			exog.Set(i, c, cand.col[i])
		}
	}
	return sur.Equation{
		Name: fmt.Sprintf("res%d.%d_h%d", f.s.Cfg.Shareable[f.pairI[p]], f.s.Cfg.Shareable[f.pairJ[p]], t+1),
		Dep:  mat.NewVecDense(tv.m, tv.dep[p]),
		Exog: exog,
		Tags: tags,
	}, nil
}
