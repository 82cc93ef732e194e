package screen

import (
	"image"
	"time"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
)

// Ops 屏幕能力接口
// Locate 系列在超时内轮询匹配；timeout 为 0 时只检查一次
type Ops interface {
	// Locate 在屏幕（或指定区域）内查找模板，返回命中矩形
	Locate(tpl config.TemplateRef, region *Rect, timeout time.Duration) (Rect, bool)
	// ClickCenter 点击矩形中心
	ClickCenter(r Rect)
	// ClickAt 点击指定坐标
	ClickAt(x, y int)
	// MoveTo 移动鼠标到指定坐标
	MoveTo(x, y int)
	// TypeText 输入文本
	TypeText(text string)
	// KeyTap 按键
	KeyTap(key string)
	// CaptureRegion 截取屏幕区域
	CaptureRegion(r Rect) (image.Image, error)
	// Size 屏幕尺寸（物理像素）
	Size() (w, h int)
}

// locateUntil 轮询 probe 直到命中或超时
// timeout 为 0 时只执行一次
func locateUntil(timeout, step time.Duration, probe func() (Rect, bool)) (Rect, bool) {
	if r, ok := probe(); ok {
		return r, true
	}
	if timeout <= 0 {
		return Rect{}, false
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(step)
		if r, ok := probe(); ok {
			return r, true
		}
	}
	return Rect{}, false
}
