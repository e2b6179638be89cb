package bootstrap

import (
	"math"
	"math/rand"
	"testing"

	"econscale/econs/design"
	"econscale/econs/meanscale"
	"econscale/econs/varsys"

	"gonum.org/v1/gonum/mat"
)

func synthConfig() *design.Config {
	return &design.Config{
		Shareable:    []int{1, 2},
		Nonshareable: 6,
		Demog:        []int{1},
		Types:        []int{24, 27},
		CellA:        2,
		CellB:        2,
		Workers:      2,
	}
}

// 合成样本: 价格随g变, 份额方程系数随类型变, 行按g连续排列
// 植入的Barten尺度: h1=(1.2, 0.9), h2=(1.05, 1.1)
func synthBase(n int, noise float64, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	cfg := synthConfig()
	base := mat.NewDense(n, cfg.NumColumns(), nil)
	blk := n / cfg.NumGroups()

	b := [4][2]float64{
		{0.05, 0.06},
		{0.05, 0.06},
		{0.06, 0.054},
		{0.0525, 0.066},
	}
	c := [4]float64{0.010, 0.012, 0.015, 0.018}

	for i := 0; i < n; i++ {
		g := i / blk
		class := i % 4
		gA, gB := g%cfg.CellA, g/cfg.CellA

		p1 := 0.10 + 0.05*float64(g)
		p2 := -0.10 + 0.03*float64(g)
		pnon := 0.02 * float64(g)
		x := math.Exp(1.0 + 0.3*rng.NormFloat64())
		z := rng.NormFloat64()
		y := math.Log(x) - pnon
		er1 := math.Exp(p1 - pnon)
		er2 := math.Exp(p2 - pnon)

		w1 := 0.2 + b[class][0]*er1*y + c[class]*z + noise*rng.NormFloat64()
		w2 := 0.2 + b[class][1]*er2*y + c[class]*z + noise*rng.NormFloat64()

		row := make([]float64, cfg.NumColumns())
		row[0], row[1], row[2] = w1*x, w2*x, (1-w1-w2)*x
		row[3], row[4], row[5] = p1, p2, pnon
		row[6], row[7] = x, z
		if class == 1 {
			row[8] = 1
		}
		if class < 2 {
			row[9] = 1
		}
		if class >= 2 {
			row[10+class-2] = 1
		}
		row[12+gB] = 1
		row[14+gA] = 1
		base.SetRow(i, row)
	}
	return base
}

func selectTestMasks(t *testing.T, cfg *design.Config, base *mat.Dense) *varsys.Masks {
	t.Helper()
	s, err := design.Build(cfg, base, nil)
	if err != nil {
		t.Fatal(err)
	}
	mean, err := meanscale.Estimate(s)
	if err != nil {
		t.Fatal(err)
	}
	masks, err := varsys.SelectMasks(s, mean, 10, 5, 123)
	if err != nil {
		t.Fatal(err)
	}
	return masks
}

func TestSummaryLenAndLabels(t *testing.T) {
	cfg := synthConfig()
	// K=2, T=2: 3段对(3) + 3段good(2) + 3段type(1)
	if got, want := SummaryLen(2, 2), 3*2*3+3*2*2+3*2; got != want {
		t.Fatalf("SummaryLen = %d, want %d", got, want)
	}
	labels := FieldLabels(cfg)
	if len(labels) != SummaryLen(2, 2) {
		t.Fatalf("label count = %d, want %d", len(labels), SummaryLen(2, 2))
	}
	if labels[0] != "cov1.1_h1" {
		t.Errorf("labels[0] = %s, want cov1.1_h1", labels[0])
	}
	if labels[6] != "covPD1.1_h1" {
		t.Errorf("labels[6] = %s, want covPD1.1_h1", labels[6])
	}
	if labels[len(labels)-1] != "scaleSF_h2" {
		t.Errorf("last label = %s, want scaleSF_h2", labels[len(labels)-1])
	}
}

func TestPointEstimate(t *testing.T) {
	cfg := synthConfig()
	base := synthBase(500, 0.002, 42)
	masks := selectTestMasks(t, cfg, base)

	// 恒等采样下点估计应还原植入的Barten尺度
	s, err := design.Build(cfg, base, nil)
	if err != nil {
		t.Fatal(err)
	}
	mean, err := meanscale.Estimate(s)
	if err != nil {
		t.Fatal(err)
	}
	want := [2][2]float64{{1.2, 0.9}, {1.05, 1.1}}
	for tt := 0; tt < 2; tt++ {
		for k := 0; k < 2; k++ {
			if math.Abs(mean.Barten[tt][k]-want[tt][k]) > 0.05 {
				t.Errorf("barten[h%d][%d] = %v, want %v", tt+1, k, mean.Barten[tt][k], want[tt][k])
			}
		}
	}

	sum, err := PointEstimate(cfg, base, masks)
	if err != nil {
		t.Fatal(err)
	}
	flat := sum.Flatten()
	if len(flat) != SummaryLen(2, 2) {
		t.Fatalf("flat length = %d, want %d", len(flat), SummaryLen(2, 2))
	}
	for i, v := range sum.Std {
		if math.IsNaN(v) || v < 0 {
			t.Errorf("std[%d] = %v", i, v)
		}
	}
	// PSD修复后相关矩阵对角元为1
	// 每类型的triu布局为 (0,0)(0,1)(1,1)
	for tt := 0; tt < 2; tt++ {
		if d := sum.Cor[tt*3]; math.Abs(d-1) > 1e-8 {
			t.Errorf("type %d cor(0,0) = %v, want 1", tt, d)
		}
		if d := sum.Cor[tt*3+2]; math.Abs(d-1) > 1e-8 {
			t.Errorf("type %d cor(1,1) = %v, want 1", tt, d)
		}
	}
	for i, v := range sum.ScaleS {
		if math.IsNaN(v) || v <= 0 {
			t.Errorf("scaleS[%d] = %v, want > 0", i, v)
		}
	}
}

func TestRunAndAggregate(t *testing.T) {
	cfg := synthConfig()
	base := synthBase(500, 0.002, 42)
	masks := selectTestMasks(t, cfg, base)

	clusters, err := cfg.GroupIDs(base)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := NewPlan(clusters, 6, 2024)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := Run(cfg, base, masks, plan)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Summaries) != 6 {
		t.Fatalf("summary count = %d, want 6", len(batch.Summaries))
	}
	usable := 0
	for _, s := range batch.Summaries {
		if s != nil {
			usable++
		}
	}
	if usable == 0 {
		t.Fatal("no usable replications")
	}
	if usable+batch.Failed != 6 {
		t.Errorf("usable %d + failed %d != 6", usable, batch.Failed)
	}

	fields, err := Aggregate(cfg, batch, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != SummaryLen(2, 2) {
		t.Fatalf("field count = %d, want %d", len(fields), SummaryLen(2, 2))
	}
	for _, f := range fields {
		if math.IsNaN(f.Mean) {
			continue
		}
		if f.Lo > f.Hi {
			t.Errorf("%s: Lo %v > Hi %v", f.Name, f.Lo, f.Hi)
		}
		if f.SE < 0 {
			t.Errorf("%s: SE = %v", f.Name, f.SE)
		}
	}
}

func TestRunPreValidation(t *testing.T) {
	cfg := synthConfig()
	base := synthBase(500, 0.002, 42)
	clusters, _ := cfg.GroupIDs(base)
	plan, err := NewPlan(clusters, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	bad := &varsys.Masks{Central: make([][]string, 1), Lower: make([][]string, 1), Upper: make([][]string, 1)}
	if _, err := Run(cfg, base, bad, plan); err == nil {
		t.Error("expected shape error for mask list lengths")
	}
	masks := selectTestMasks(t, cfg, base)
	shortPlan := &Plan{R: 1, N: 10, Idx: [][]int{{0}}}
	if _, err := Run(cfg, base, masks, shortPlan); err == nil {
		t.Error("expected shape error for plan/base mismatch")
	}
}

func TestAggregateErrors(t *testing.T) {
	cfg := synthConfig()
	if _, err := Aggregate(cfg, &BatchResult{Summaries: []*Summary{nil}}, 0.05); err == nil {
		t.Error("expected error when no replication succeeded")
	}
	if _, err := Aggregate(cfg, &BatchResult{}, 1.5); err == nil {
		t.Error("expected error for alpha out of range")
	}
}
