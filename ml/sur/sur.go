// SUR(seemingly unrelated regressions)系统估计
// 无跨方程约束 + unadjusted协方差时, 系数与逐方程OLS一致, 这里按方程拟合后
// 再统一汇总方程间残差协方差, 维度与联合估计对齐
//
// 每个系数携带结构化tag(方程/角色/类型/good), 下游按tag取子集,
// 不做参数名子串匹配
package sur

import (
	"econscale/infra/errCode"
	"econscale/ml/ols"

	"gonum.org/v1/gonum/mat"
)

// CoeffRole 回归元语义角色
type CoeffRole int

const (
	RoleERY        CoeffRole = iota // er*y 与类型的交互项
	RoleDemog                       // 人口特征与类型的交互项
	RoleCrossProd                   // 方差方程的交叉积项(免惩罚)
	RoleGroupCross                  // 组交互的交叉和项
)

type CoeffTag struct {
	Name string    // 列名, 与LASSO掩码匹配时用
	Role CoeffRole
	Type string    // 类型标签: "s" "sm" "sf" "h1"... 无则空
	Good int       // 关联的shareable good下标, 无则-1
}

type Equation struct {
	Name string
	Dep  *mat.VecDense
	Exog *mat.Dense
	Tags []CoeffTag
}

type EquationResult struct {
	Name  string
	Model ols.MultiLinearModel
	Tags  []CoeffTag
}

type SystemResult struct {
	Eqs    []EquationResult
	SigmaU *mat.SymDense // 方程间残差协方差(unadjusted, 除n)
}

// FitSystem 按方程序拟合整个系统
func FitSystem(eqs []Equation) (*SystemResult, error) {
	if len(eqs) == 0 {
		return nil, errCode.EMPTY_VALUE.New("no equations in system")
	}
	n := eqs[0].Dep.Len()
	results := make([]EquationResult, len(eqs))
	for i, eq := range eqs {
		if eq.Dep.Len() != n {
			return nil, errCode.SHAPE_MISMATCH.New("equation %s has %d obs, expected %d", eq.Name, eq.Dep.Len(), n)
		}
		_, k := eq.Exog.Dims()
		if k != len(eq.Tags) {
			return nil, errCode.SHAPE_MISMATCH.New("equation %s has %d exog cols but %d tags", eq.Name, k, len(eq.Tags))
		}
		model, err := ols.MultiRegressionMat(eq.Exog, eq.Dep)
		if err != nil {
			return nil, errCode.DEGENERATE_SAMPLE.Wrap(err, "fit of equation %s failed", eq.Name)
		}
		results[i] = EquationResult{Name: eq.Name, Model: model, Tags: eq.Tags}
	}

	sigma := mat.NewSymDense(len(eqs), nil)
	for i := range results {
		for j := i; j < len(results); j++ {
			dot := 0.0
			for t := 0; t < n; t++ {
				dot += results[i].Model.Resids[t] * results[j].Model.Resids[t]
			}
			sigma.SetSym(i, j, dot/float64(n))
		}
	}
	return &SystemResult{Eqs: results, SigmaU: sigma}, nil
}

// CoeffsBy 按谓词跨方程收集系数, 保持方程序与方程内列序
func (s *SystemResult) CoeffsBy(pred func(CoeffTag) bool) []float64 {
	var out []float64
	for _, eq := range s.Eqs {
		for i, tag := range eq.Tags {
			if pred(tag) {
				out = append(out, eq.Model.Coeffs[i])
			}
		}
	}
	return out
}

// CoeffIn 单方程内按谓词取首个命中系数, 无命中返回false
func (s *SystemResult) CoeffIn(eqIdx int, pred func(CoeffTag) bool) (float64, bool) {
	eq := s.Eqs[eqIdx]
	for i, tag := range eq.Tags {
		if pred(tag) {
			return eq.Model.Coeffs[i], true
		}
	}
	return 0, false
}
