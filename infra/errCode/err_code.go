package errCode

import "github.com/joomcode/errorx"

// 错误码集中定义, 调用方写法: errCode.INVALID_VALUE.New("...")
// 分三类:
//   配置错误(INVALID_VALUE / EMPTY_VALUE / SHAPE_MISMATCH): 批跑启动前致命
//   退化样本(DEGENERATE_SAMPLE): 仅当次replication无效, 汇总时剔除并计数
//   数值问题(NUMERICAL): PSD修复不收敛等, 记录日志后以NaN/哨兵值返回
var (
	Namespace = errorx.NewNamespace("econscale")

	INVALID_VALUE     = Namespace.NewType("invalid_value")
	EMPTY_VALUE       = Namespace.NewType("empty_value")
	SHAPE_MISMATCH    = Namespace.NewType("shape_mismatch")
	DEGENERATE_SAMPLE = Namespace.NewType("degenerate_sample")
	NUMERICAL         = Namespace.NewType("numerical")
)

// IsFatal 配置类错误需要整批中止, 其余按replication处理
func IsFatal(err error) bool {
	return errorx.IsOfType(err, INVALID_VALUE) ||
		errorx.IsOfType(err, EMPTY_VALUE) ||
		errorx.IsOfType(err, SHAPE_MISMATCH)
}
