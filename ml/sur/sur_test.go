package sur

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestFitSystemRecovery(t *testing.T) {
	// 两方程共用回归元, 无噪声: y1 = x1 + 2*x2, y2 = -x1 + 0.5*x2
	rng := rand.New(rand.NewSource(3))
	n := 80
	x := mat.NewDense(n, 2, nil)
	y1 := mat.NewVecDense(n, nil)
	y2 := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		y1.SetVec(i, a+2*b)
		y2.SetVec(i, -a+0.5*b)
	}
	tags := []CoeffTag{
		{Name: "x1", Role: RoleERY, Type: "s", Good: 0},
		{Name: "x2", Role: RoleDemog, Type: "sm", Good: -1},
	}
	sys, err := FitSystem([]Equation{
		{Name: "eq1", Dep: y1, Exog: x, Tags: tags},
		{Name: "eq2", Dep: y2, Exog: x, Tags: tags},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{1, 2}, {-1, 0.5}}
	for e := range want {
		for j := range want[e] {
			if math.Abs(sys.Eqs[e].Model.Coeffs[j]-want[e][j]) > 1e-8 {
				t.Errorf("eq %d coeff %d = %v, want %v", e, j, sys.Eqs[e].Model.Coeffs[j], want[e][j])
			}
		}
	}
	// 无噪声时方程间残差协方差为0
	if sys.SigmaU.SymmetricDim() != 2 {
		t.Fatalf("SigmaU dim = %d, want 2", sys.SigmaU.SymmetricDim())
	}
	if math.Abs(sys.SigmaU.At(0, 1)) > 1e-12 {
		t.Errorf("SigmaU(0,1) = %v, want 0", sys.SigmaU.At(0, 1))
	}
}

func TestCoeffSelectors(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewVecDense(4, []float64{2, 4, 6, 8})
	tags := []CoeffTag{{Name: "x", Role: RoleCrossProd, Type: "h1", Good: 0}}
	sys, err := FitSystem([]Equation{{Name: "eq1", Dep: y, Exog: x, Tags: tags}})
	if err != nil {
		t.Fatal(err)
	}
	got := sys.CoeffsBy(func(tag CoeffTag) bool { return tag.Role == RoleCrossProd })
	if len(got) != 1 || math.Abs(got[0]-2) > 1e-10 {
		t.Errorf("CoeffsBy = %v, want [2]", got)
	}
	if _, ok := sys.CoeffIn(0, func(tag CoeffTag) bool { return tag.Role == RoleERY }); ok {
		t.Error("CoeffIn matched a role that is not present")
	}
}

func TestFitSystemErrors(t *testing.T) {
	if _, err := FitSystem(nil); err == nil {
		t.Error("expected error for empty system")
	}
	x := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y4 := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	y3 := mat.NewVecDense(3, []float64{1, 2, 3})
	tags := []CoeffTag{{Name: "x"}}
	if _, err := FitSystem([]Equation{
		{Name: "a", Dep: y4, Exog: x, Tags: tags},
		{Name: "b", Dep: y3, Exog: x, Tags: tags},
	}); err == nil {
		t.Error("expected error for unbalanced observation counts")
	}
	if _, err := FitSystem([]Equation{{Name: "a", Dep: y4, Exog: x, Tags: nil}}); err == nil {
		t.Error("expected error for tag count mismatch")
	}
}
