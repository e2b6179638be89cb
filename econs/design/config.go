package design

import (
	"fmt"
	"os"

	"econscale/infra/errCode"

	"gopkg.in/yaml.v3"
)

// Config 样本列布局与批跑参数
// 输入矩阵列序固定为:
//   s_1..s_K | s_non | p_1..p_K | p_non | x | z_1..z_D | z_sex | z_single |
//   type_1..type_T | cellB_1..cellB_B | cellA_1..cellA_A
// 其中p均为对数价格; cellA×cellB的笛卡尔积构成群组(如省份×年份)
// 语义名到列区间的映射只在这里算一次, 热循环内全部用整数下标
type Config struct {
	Shareable    []int `yaml:"shareable"`    // shareable goods变量编号(命名用)
	Nonshareable int   `yaml:"nonshareable"` // nonshareable good变量编号
	Demog        []int `yaml:"demog"`        // 人口特征变量编号
	Types        []int `yaml:"types"`        // 多人户类型变量编号
	CellA        int   `yaml:"cella"`        // cellA维个数(如省份)
	CellB        int   `yaml:"cellb"`        // cellB维个数(如年份)
	Replications int   `yaml:"replications"` // bootstrap次数
	Seed         int64 `yaml:"seed"`
	Workers      int   `yaml:"workers"` // <=0 取 runtime.NumCPU()
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if len(c.Shareable) == 0 {
		return errCode.EMPTY_VALUE.New("shareable goods list is empty")
	}
	if len(c.Types) < 2 {
		return errCode.INVALID_VALUE.New("need at least 2 household types, got %d", len(c.Types))
	}
	if c.CellA < 1 || c.CellB < 1 {
		return errCode.INVALID_VALUE.New("cell block sizes must be >= 1, got A=%d B=%d", c.CellA, c.CellB)
	}
	return nil
}

func (c *Config) NumGoods() int  { return len(c.Shareable) }
func (c *Config) NumTypes() int  { return len(c.Types) }
func (c *Config) NumDemog() int  { return len(c.Demog) }
func (c *Config) NumGroups() int { return c.CellA * c.CellB }

// NumPairs 无序good对(i<=j)个数 K(K+1)/2
func (c *Config) NumPairs() int {
	k := c.NumGoods()
	return k * (k + 1) / 2
}

func (c *Config) NumColumns() int {
	return 2*c.NumGoods() + 5 + c.NumDemog() + c.NumTypes() + c.CellA + c.CellB
}

// 列下标, 与上面文档中的列序一一对应
func (c *Config) colS(k int) int     { return k }
func (c *Config) colSNon() int       { return c.NumGoods() }
func (c *Config) colP(k int) int     { return c.NumGoods() + 1 + k }
func (c *Config) colPNon() int       { return 2*c.NumGoods() + 1 }
func (c *Config) colX() int          { return 2*c.NumGoods() + 2 }
func (c *Config) colZ(d int) int     { return 2*c.NumGoods() + 3 + d }
func (c *Config) colSex() int        { return 2*c.NumGoods() + 3 + c.NumDemog() }
func (c *Config) colSingle() int     { return 2*c.NumGoods() + 4 + c.NumDemog() }
func (c *Config) colType(t int) int  { return 2*c.NumGoods() + 5 + c.NumDemog() + t }
func (c *Config) colCellB(j int) int { return 2*c.NumGoods() + 5 + c.NumDemog() + c.NumTypes() + j }
func (c *Config) colCellA(i int) int {
	return 2*c.NumGoods() + 5 + c.NumDemog() + c.NumTypes() + c.CellB + i
}

// TypeLabel t指示块的标签: sm, sf, h1..hT
func (c *Config) TypeLabel(tIdx int) string {
	switch tIdx {
	case 0:
		return "sm"
	case 1:
		return "sf"
	default:
		return fmt.Sprintf("h%d", tIdx-1)
	}
}

// SingleLabel t_single指示块的标签: s, h1..hT
func (c *Config) SingleLabel(j int) string {
	if j == 0 {
		return "s"
	}
	return fmt.Sprintf("h%d", j)
}
