package runner

import (
	"strconv"
	"strings"
	"time"
)

// parseClock 解析 "HH:MM" 为当日分钟数
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// WindowContains 判断本地时间是否落在 [start, end] 窗口内
// end 早于 start 时表示跨午夜窗口（如 22:00–06:00）；
// 时间格式非法时视为不匹配。
func WindowContains(start, end string, now time.Time) bool {
	s, ok := parseClock(start)
	if !ok {
		return false
	}
	e, ok := parseClock(end)
	if !ok {
		return false
	}
	n := now.Hour()*60 + now.Minute()

	if e >= s {
		return n >= s && n <= e
	}
	// 跨午夜
	return n >= s || n <= e
}
