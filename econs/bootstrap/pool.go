// bootstrap并行执行与汇总
// 固定worker数的任务池, 每个replication按下标写回各自槽位, 无共享中间态
// 配置类错误(形状/参数)在起跑前整体失败; 单次replication的数值退化
// 只记入失败计数, 不拖垮整批
package bootstrap

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"econscale/econs/design"
	"econscale/econs/varsys"
	"econscale/infra/errCode"
	"econscale/infra/staticLog"
	"econscale/numpy/npCov"

	gstat "github.com/gonum/stat"
	"gonum.org/v1/gonum/mat"
)

// BatchResult 整批replication的结果, Summaries按replication下标对齐,
// 失败槽位为nil
type BatchResult struct {
	Summaries []*Summary
	Failed    int
	Errs      map[int]error
}

// Run 并行执行计划内的全部replication
func Run(cfg *design.Config, base *mat.Dense, masks *varsys.Masks, plan *Plan) (*BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n, cols := base.Dims()
	if cols != cfg.NumColumns() {
		return nil, errCode.SHAPE_MISMATCH.New("base sample has %d columns, config requires %d", cols, cfg.NumColumns())
	}
	if plan.N != n {
		return nil, errCode.SHAPE_MISMATCH.New("plan built for %d rows, base sample has %d", plan.N, n)
	}
	tp := cfg.NumTypes() * cfg.NumPairs()
	if len(masks.Central) != tp || len(masks.Lower) != tp || len(masks.Upper) != tp {
		return nil, errCode.SHAPE_MISMATCH.New("mask lists must each have %d entries", tp)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > plan.R {
		workers = plan.R
	}

	out := &BatchResult{
		Summaries: make([]*Summary, plan.R),
		Errs:      make(map[int]error),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan int, plan.R)
	abort := make(chan struct{})
	var abortOnce sync.Once
	var fatalErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rep := range jobs {
				select {
				case <-abort:
					return
				default:
				}
				sum, err := Replicate(cfg, base, masks, plan.Idx[rep])
				if err != nil {
					if errCode.IsFatal(err) {
						abortOnce.Do(func() {
							fatalErr = err
							close(abort)
						})
						return
					}
					mu.Lock()
					out.Errs[rep] = err
					out.Failed++
					mu.Unlock()
					continue
				}
				out.Summaries[rep] = sum
			}
		}()
	}
	for rep := 0; rep < plan.R; rep++ {
		jobs <- rep
	}
	close(jobs)
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	if out.Failed > 0 {
		staticLog.Log.Warnf("[bootstrap] %d of %d replications failed", out.Failed, plan.R)
	}
	staticLog.Log.Infof("[bootstrap] finished %d replications, %d usable", plan.R, plan.R-out.Failed)
	return out, nil
}

// AggField 单个输出字段的bootstrap汇总
type AggField struct {
	Name string
	Mean float64
	SE   float64 // bootstrap标准误, 总体标准差口径(除n)
	Lo   float64 // alpha/2分位
	Hi   float64 // 1-alpha/2分位
}

// Aggregate 跨replication汇总全部输出字段
// NaN的replication值按字段剔除; alpha为双侧置信水平(如0.05)
func Aggregate(cfg *design.Config, batch *BatchResult, alpha float64) ([]AggField, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, errCode.INVALID_VALUE.New("alpha must be in (0,1), got %v", alpha)
	}
	labels := FieldLabels(cfg)
	flat := make([][]float64, 0, len(batch.Summaries))
	for _, s := range batch.Summaries {
		if s == nil {
			continue
		}
		f := s.Flatten()
		if len(f) != len(labels) {
			return nil, errCode.SHAPE_MISMATCH.New("summary has %d fields, expected %d", len(f), len(labels))
		}
		flat = append(flat, f)
	}
	if len(flat) == 0 {
		return nil, errCode.EMPTY_VALUE.New("no usable replications to aggregate")
	}

	fields := make([]AggField, len(labels))
	for j, name := range labels {
		vals := make([]float64, 0, len(flat))
		for _, f := range flat {
			if v := f[j]; v == v { // 剔除NaN
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			fields[j] = AggField{Name: name, Mean: math.NaN(), SE: math.NaN(), Lo: math.NaN(), Hi: math.NaN()}
			continue
		}
		sort.Float64s(vals)
		fields[j] = AggField{
			Name: name,
			Mean: gstat.Mean(vals, nil),
			SE:   npCov.StdPopulation(vals),
			Lo:   quantile(vals, alpha/2),
			Hi:   quantile(vals, 1-alpha/2),
		}
	}
	return fields, nil
}

// quantile 升序序列的线性插值分位数
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
