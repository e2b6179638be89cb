// 组内去均值, 用于去除cluster固定效应
// 纯函数, 不持有状态; 行序与形状保持
package demean

import "econscale/infra/errCode"

// Pairs 稀疏0/1组指示的(行号, 组号)对编码
// 对应 scipy.sparse.csr_array(indicator).nonzero() 的两个索引数组
type Pairs struct {
	Rows   []int
	Groups []int
}

// FromLabels 稠密组标签转Pairs, label<0的行不属于任何组
func FromLabels(labels []int) Pairs {
	p := Pairs{}
	for i, g := range labels {
		if g < 0 {
			continue
		}
		p.Rows = append(p.Rows, i)
		p.Groups = append(p.Groups, g)
	}
	return p
}

// ByGroup 对N*P行主序矩阵逐组减去组内列均值
// 不属于任何组的行输出为0(与参考实现的零初始化语义一致)
// 组无需连续编号; 单成员组去均值后该行为0
func ByGroup(data []float64, n, p int, g Pairs) ([]float64, error) {
	if len(data) != n*p {
		return nil, errCode.SHAPE_MISMATCH.New("data length %d != n*p = %d", len(data), n*p)
	}
	if len(g.Rows) != len(g.Groups) {
		return nil, errCode.SHAPE_MISMATCH.New("rows/groups length mismatch: %d vs %d", len(g.Rows), len(g.Groups))
	}

	members := make(map[int][]int)
	for i, row := range g.Rows {
		if row < 0 || row >= n {
			return nil, errCode.INVALID_VALUE.New("row index %d out of range [0,%d)", row, n)
		}
		grp := g.Groups[i]
		members[grp] = append(members[grp], row)
	}

	out := make([]float64, n*p)
	mean := make([]float64, p)
	for _, rows := range members {
		for j := range mean {
			mean[j] = 0
		}
		for _, r := range rows {
			base := r * p
			for j := 0; j < p; j++ {
				mean[j] += data[base+j]
			}
		}
		inv := 1.0 / float64(len(rows))
		for j := 0; j < p; j++ {
			mean[j] *= inv
		}
		for _, r := range rows {
			base := r * p
			for j := 0; j < p; j++ {
				out[base+j] = data[base+j] - mean[j]
			}
		}
	}
	return out, nil
}
