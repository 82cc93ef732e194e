package price

import (
	"regexp"
	"strconv"
	"strings"
)

// priceToken 匹配带可选小数与 K/M 后缀的数字
var priceToken = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([KM]?)`)

// ParsePrice 从 OCR 原始文本中解析价格
// 支持 K（千）/ M（百万）后缀，忽略千分位逗号与空白；
// 文本中没有数字时返回 ok=false。
func ParsePrice(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	// OCR 常见误读修正
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "，", "")
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "o", "0")

	m := priceToken.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	switch strings.ToUpper(m[2]) {
	case "K":
		val *= 1_000
	case "M":
		val *= 1_000_000
	}

	price := int(val + 0.5)
	if price <= 0 {
		return 0, false
	}
	return price, true
}

// PlausibleAgainstFloor 价格合理性检查
// 识别结果低于预期底价的一半时按截断误读处理（如 105K 被读成 105）
func PlausibleAgainstFloor(price, expectedFloor int) bool {
	if expectedFloor <= 0 {
		return true
	}
	return price >= expectedFloor/2
}
