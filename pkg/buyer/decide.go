package buyer

import (
	"math"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/store"
)

// Decision 价格决策结果
type Decision int

const (
	// DecideReject 价格超出全部限额，放弃本轮
	DecideReject Decision = iota
	// DecideNormal 走普通购买路径
	DecideNormal
	// DecideRestock 价格低到值得连续补货
	DecideRestock
)

func (d Decision) String() string {
	switch d {
	case DecideNormal:
		return "normal"
	case DecideRestock:
		return "restock"
	default:
		return "reject"
	}
}

// LimitFor 基准价加溢价后的限额
// 基准价为 0 表示该购买路径关闭，限额为 0
func LimitFor(threshold int, premiumPct float64) int {
	if threshold <= 0 {
		return 0
	}
	return threshold + int(math.Round(float64(threshold)*premiumPct/100))
}

// Decide 根据价格与任务阈值做购买决策
// 补货路径优先：价格低到补货限额以内时连续补货收益最大；
// 两条路径各自独立启用（基准价 > 0），互不依赖。
func Decide(price int, t *store.Task) Decision {
	if price <= 0 {
		return DecideReject
	}
	if limit := LimitFor(t.RestockPrice, t.RestockPremiumPct); limit > 0 && price <= limit {
		return DecideRestock
	}
	if limit := LimitFor(t.PriceThreshold, t.PricePremiumPct); limit > 0 && price <= limit {
		return DecideNormal
	}
	return DecideReject
}

// ExpectedFloor 价格合理性检查用的预期底价
// 优先用普通基准价，未配置时退回补货基准价
func ExpectedFloor(t *store.Task) int {
	if t.PriceThreshold > 0 {
		return t.PriceThreshold
	}
	return t.RestockPrice
}
