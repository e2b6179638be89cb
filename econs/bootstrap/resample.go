// 按cluster分块的有放回重采样计划
// 基础样本须按cluster连续排列; 每个replication在每块内独立等概率抽取
// 与原块同样多的行, 块结构(各cluster样本量)在所有replication中保持不变
package bootstrap

import (
	"math/rand"

	"econscale/infra/errCode"
)

// Plan 预生成的全部重采样下标, Idx[r]为第r次replication的行下标
type Plan struct {
	R   int
	N   int
	Idx [][]int
}

// ClusterBlocks 连续cluster段的[start, end)区间
// 同一cluster编号在非连续位置再次出现视为输入未排序, 直接报错
func ClusterBlocks(clusterID []int) ([][2]int, error) {
	if len(clusterID) == 0 {
		return nil, errCode.EMPTY_VALUE.New("cluster id vector is empty")
	}
	seen := make(map[int]bool)
	var blocks [][2]int
	start := 0
	for i := 1; i <= len(clusterID); i++ {
		if i == len(clusterID) || clusterID[i] != clusterID[start] {
			if seen[clusterID[start]] {
				return nil, errCode.INVALID_VALUE.New("cluster %d reappears after a gap, sample must be sorted by cluster", clusterID[start])
			}
			seen[clusterID[start]] = true
			blocks = append(blocks, [2]int{start, i})
			start = i
		}
	}
	return blocks, nil
}

// NewPlan 生成r次replication的重采样下标
// 主种子只派生每次replication的子种子, 因此单次replication的结果
// 不依赖其余replication的执行与否
func NewPlan(clusterID []int, r int, seed int64) (*Plan, error) {
	if r < 1 {
		return nil, errCode.INVALID_VALUE.New("replication count must be >= 1, got %d", r)
	}
	blocks, err := ClusterBlocks(clusterID)
	if err != nil {
		return nil, err
	}
	n := len(clusterID)

	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, r)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	p := &Plan{R: r, N: n, Idx: make([][]int, r)}
	for rep := 0; rep < r; rep++ {
		rng := rand.New(rand.NewSource(seeds[rep]))
		idx := make([]int, 0, n)
		for _, b := range blocks {
			size := b[1] - b[0]
			for i := 0; i < size; i++ {
				idx = append(idx, b[0]+rng.Intn(size))
			}
		}
		p.Idx[rep] = idx
	}
	return p, nil
}
