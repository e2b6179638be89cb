// 从一次(重)采样构造两阶段回归的全部派生变量:
// 群组/gt交互单元, 单点gt排除, 对数实际支出, 相对价格, 预算份额,
// gt组内去均值与 er*ỹ 交互项
// 点估计与每次bootstrap replication走完全相同的路径
package design

import (
	"math"

	"econscale/econs/demean"
	"econscale/infra/errCode"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/mat"
)

// Sample 一次replication的工作样本, 构造后只读
type Sample struct {
	Cfg *Config
	N   int

	SrcIdx []int // 每行对应的基础样本行号(重采样保留重复)
	GIdx   []int // 每行所属g cell (cellB主序: jB*|A|+iA)
	TIdx   []int // 每行类型: 0=sm 1=sf 2..=h1..hT
	GT     demean.Pairs

	Y   []float64 // N, log(x) - p_non
	Er  []float64 // N*K, exp(p_k - p_non)
	Z   []float64 // N*D, 原始人口特征
	W   []float64 // N*K, 预算份额
	WAll []float64 // N*(K+1), 含nonshareable份额

	WDemean []float64 // N*K, gt去均值后
	YDemean []float64 // N
	ZDemean []float64 // N*D
	Ery     []float64 // N*K, er * ỹ (均值阶段回归元)

	NumDropped int // 单点gt cell排除掉的行数
}

// Build 构造工作样本; resample为nil时为恒等采样(点估计路径)
// 单点gt排除规则(两条路径统一): 某gt cell仅由一个「不同的基础样本行」支撑
// 时整格剔除, 重复采到同一行不增加支撑数
func Build(cfg *Config, base *mat.Dense, resample []int) (*Sample, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n0, cols := base.Dims()
	if cols != cfg.NumColumns() {
		return nil, errCode.SHAPE_MISMATCH.New("base sample has %d columns, config requires %d", cols, cfg.NumColumns())
	}
	if n0 == 0 {
		return nil, errCode.EMPTY_VALUE.New("base sample is empty")
	}
	if resample == nil {
		resample = make([]int, n0)
		for i := range resample {
			resample[i] = i
		}
	}
	n := len(resample)
	if n == 0 {
		return nil, errCode.EMPTY_VALUE.New("resample index vector is empty")
	}

	K, D, G := cfg.NumGoods(), cfg.NumDemog(), cfg.NumGroups()

	// 行解析: g cell与类型
	gIdx := make([]int, n)
	tIdx := make([]int, n)
	for i, src := range resample {
		if src < 0 || src >= n0 {
			return nil, errCode.INVALID_VALUE.New("resample index %d out of range [0,%d)", src, n0)
		}
		g, err := rowGroup(cfg, base, src)
		if err != nil {
			return nil, err
		}
		t, err := rowType(cfg, base, src)
		if err != nil {
			return nil, err
		}
		gIdx[i], tIdx[i] = g, t
	}

	// gt cell支撑数: 不同基础样本行计数
	gtOf := func(i int) int { return tIdx[i]*G + gIdx[i] }
	support := make(map[int]map[int]bool)
	for i := range resample {
		cell := gtOf(i)
		if support[cell] == nil {
			support[cell] = make(map[int]bool)
		}
		support[cell][resample[i]] = true
	}
	excluded := bitset.New(uint(n))
	for i := range resample {
		if len(support[gtOf(i)]) == 1 {
			excluded.Set(uint(i))
		}
	}

	kept := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !excluded.Test(uint(i)) {
			kept = append(kept, i)
		}
	}
	if len(kept) == 0 {
		return nil, errCode.DEGENERATE_SAMPLE.New("all observations fall in singleton gt cells")
	}

	s := &Sample{
		Cfg:        cfg,
		N:          len(kept),
		SrcIdx:     make([]int, len(kept)),
		GIdx:       make([]int, len(kept)),
		TIdx:       make([]int, len(kept)),
		Y:          make([]float64, len(kept)),
		Er:         make([]float64, len(kept)*K),
		Z:          make([]float64, len(kept)*D),
		W:          make([]float64, len(kept)*K),
		WAll:       make([]float64, len(kept)*(K+1)),
		NumDropped: n - len(kept),
	}
	for newI, oldI := range kept {
		src := resample[oldI]
		s.SrcIdx[newI] = src
		s.GIdx[newI] = gIdx[oldI]
		s.TIdx[newI] = tIdx[oldI]

		x := base.At(src, cfg.colX())
		if x <= 0 {
			return nil, errCode.INVALID_VALUE.New("total outlay must be positive, got %v at base row %d", x, src)
		}
		pNon := base.At(src, cfg.colPNon())
		s.Y[newI] = math.Log(x) - pNon
		for k := 0; k < K; k++ {
			s.Er[newI*K+k] = math.Exp(base.At(src, cfg.colP(k)) - pNon)
			s.W[newI*K+k] = base.At(src, cfg.colS(k)) / x
			s.WAll[newI*(K+1)+k] = s.W[newI*K+k]
		}
		s.WAll[newI*(K+1)+K] = base.At(src, cfg.colSNon()) / x
		for d := 0; d < D; d++ {
			s.Z[newI*D+d] = base.At(src, cfg.colZ(d))
		}
	}

	// gt去均值: [w | y | z] 一次性处理
	gtLabels := make([]int, s.N)
	for i := 0; i < s.N; i++ {
		gtLabels[i] = s.TIdx[i]*G + s.GIdx[i]
	}
	s.GT = demean.FromLabels(gtLabels)

	p := K + 1 + D
	wyz := make([]float64, s.N*p)
	for i := 0; i < s.N; i++ {
		copy(wyz[i*p:i*p+K], s.W[i*K:(i+1)*K])
		wyz[i*p+K] = s.Y[i]
		copy(wyz[i*p+K+1:(i+1)*p], s.Z[i*D:(i+1)*D])
	}
	wyzD, err := demean.ByGroup(wyz, s.N, p, s.GT)
	if err != nil {
		return nil, err
	}
	s.WDemean = make([]float64, s.N*K)
	s.YDemean = make([]float64, s.N)
	s.ZDemean = make([]float64, s.N*D)
	s.Ery = make([]float64, s.N*K)
	for i := 0; i < s.N; i++ {
		copy(s.WDemean[i*K:(i+1)*K], wyzD[i*p:i*p+K])
		s.YDemean[i] = wyzD[i*p+K]
		copy(s.ZDemean[i*D:(i+1)*D], wyzD[i*p+K+1:(i+1)*p])
		for k := 0; k < K; k++ {
			s.Ery[i*K+k] = s.Er[i*K+k] * s.YDemean[i]
		}
	}

	if err := s.checkSupport(); err != nil {
		return nil, err
	}
	return s, nil
}

// checkSupport 排除后每个多人户类型需有>=2个成员数>=2的g组,
// 否则方差估计不适定, 直接报退化而不是继续算
func (s *Sample) checkSupport() error {
	T, G := s.Cfg.NumTypes(), s.Cfg.NumGroups()
	for t := 0; t < T; t++ {
		counts := make(map[int]int, G)
		for i := 0; i < s.N; i++ {
			if s.TIdx[i] == 2+t {
				counts[s.GIdx[i]]++
			}
		}
		ok := 0
		for _, c := range counts {
			if c >= 2 {
				ok++
			}
		}
		if ok < 2 {
			return errCode.DEGENERATE_SAMPLE.New("type h%d has %d groups with >=2 members, need >=2", t+1, ok)
		}
	}
	return nil
}

// IsSingle 该行是否单人户
func (s *Sample) IsSingle(i int) bool { return s.TIdx[i] < 2 }

// TSingleIdx t_single指示块下标: 0=s, 1..T=h1..hT
func (s *Sample) TSingleIdx(i int) int {
	if s.TIdx[i] < 2 {
		return 0
	}
	return s.TIdx[i] - 1
}

// GroupIDs 基础样本每行的g cell编号, 供重采样计划使用(不做gt排除)
func (c *Config) GroupIDs(base *mat.Dense) ([]int, error) {
	n, cols := base.Dims()
	if cols != c.NumColumns() {
		return nil, errCode.SHAPE_MISMATCH.New("base sample has %d columns, config requires %d", cols, c.NumColumns())
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		g, err := rowGroup(c, base, i)
		if err != nil {
			return nil, err
		}
		out[i] = g
	}
	return out, nil
}

func rowGroup(cfg *Config, base *mat.Dense, row int) (int, error) {
	iA, jB := -1, -1
	for i := 0; i < cfg.CellA; i++ {
		if base.At(row, cfg.colCellA(i)) > 0.5 {
			if iA >= 0 {
				return 0, errCode.INVALID_VALUE.New("base row %d active in multiple cellA cells", row)
			}
			iA = i
		}
	}
	for j := 0; j < cfg.CellB; j++ {
		if base.At(row, cfg.colCellB(j)) > 0.5 {
			if jB >= 0 {
				return 0, errCode.INVALID_VALUE.New("base row %d active in multiple cellB cells", row)
			}
			jB = j
		}
	}
	if iA < 0 || jB < 0 {
		return 0, errCode.INVALID_VALUE.New("base row %d has no cell assignment", row)
	}
	return jB*cfg.CellA + iA, nil
}

func rowType(cfg *Config, base *mat.Dense, row int) (int, error) {
	single := base.At(row, cfg.colSingle()) > 0.5
	typeIdx := -1
	for t := 0; t < cfg.NumTypes(); t++ {
		if base.At(row, cfg.colType(t)) > 0.5 {
			if typeIdx >= 0 || single {
				return 0, errCode.INVALID_VALUE.New("base row %d has conflicting type flags", row)
			}
			typeIdx = t
		}
	}
	if single {
		if base.At(row, cfg.colSex()) > 0.5 {
			return 1, nil // sf
		}
		return 0, nil // sm
	}
	if typeIdx < 0 {
		return 0, errCode.INVALID_VALUE.New("base row %d is neither single nor any household type", row)
	}
	return 2 + typeIdx, nil
}
