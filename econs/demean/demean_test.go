package demean

import (
	"math"
	"testing"
)

const tol = 1e-12

func TestByGroupMeansAreZero(t *testing.T) {
	// 2列, 3组(其中一组单成员)
	data := []float64{
		1, 10,
		2, 20,
		5, 50,
		7, 70,
		9, 90,
	}
	labels := []int{0, 0, 1, 1, 2}
	out, err := ByGroup(data, 5, 2, FromLabels(labels))
	if err != nil {
		t.Fatal(err)
	}
	// 逐组逐列均值应为0
	for g := 0; g <= 2; g++ {
		for j := 0; j < 2; j++ {
			sum, cnt := 0.0, 0
			for i, lb := range labels {
				if lb == g {
					sum += out[i*2+j]
					cnt++
				}
			}
			if math.Abs(sum/float64(cnt)) > tol {
				t.Errorf("group %d col %d mean = %v, want 0", g, j, sum/float64(cnt))
			}
		}
	}
	// 单成员组去均值后为0
	if out[4*2] != 0 || out[4*2+1] != 0 {
		t.Errorf("singleton group row = (%v, %v), want (0, 0)", out[4*2], out[4*2+1])
	}
}

func TestByGroupGlobalGroup(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	out, err := ByGroup(data, 4, 1, FromLabels([]int{0, 0, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-1.5, -0.5, 0.5, 1.5}
	for i := range want {
		if math.Abs(out[i]-want[i]) > tol {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestByGroupIdempotent(t *testing.T) {
	data := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	g := FromLabels([]int{0, 0, 1, 1, 0, 1, 0, 1})
	once, err := ByGroup(data, 8, 1, g)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := ByGroup(once, 8, 1, g)
	if err != nil {
		t.Fatal(err)
	}
	for i := range once {
		if math.Abs(once[i]-twice[i]) > tol {
			t.Errorf("row %d: %v != %v", i, once[i], twice[i])
		}
	}
}

func TestByGroupUnassignedRowsZero(t *testing.T) {
	data := []float64{7, 8, 9}
	out, err := ByGroup(data, 3, 1, FromLabels([]int{0, -1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if out[1] != 0 {
		t.Errorf("unassigned row = %v, want 0", out[1])
	}
}

func TestByGroupShapeErrors(t *testing.T) {
	if _, err := ByGroup([]float64{1, 2, 3}, 2, 2, Pairs{}); err == nil {
		t.Error("expected shape error for data length")
	}
	if _, err := ByGroup([]float64{1, 2}, 2, 1, Pairs{Rows: []int{0, 1}, Groups: []int{0}}); err == nil {
		t.Error("expected shape error for rows/groups mismatch")
	}
	if _, err := ByGroup([]float64{1, 2}, 2, 1, Pairs{Rows: []int{5}, Groups: []int{0}}); err == nil {
		t.Error("expected range error for row index")
	}
}
