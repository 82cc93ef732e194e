package screen

import (
	"fmt"
	"image"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
)

// 轮询与点击时序
const (
	// DefaultStep 定位轮询步长
	DefaultStep = 15 * time.Millisecond
	// clickSettle 鼠标移动到位后的短暂停顿
	clickSettle = 50 * time.Millisecond
)

// Robot 基于 robotgo + gocv 的 Ops 实现
type Robot struct {
	cache *templateCache
	step  time.Duration
}

var _ Ops = (*Robot)(nil)

// NewRobot 创建屏幕操作实例
func NewRobot() *Robot {
	return &Robot{cache: newTemplateCache(), step: DefaultStep}
}

// Close 释放模板缓存
func (r *Robot) Close() {
	r.cache.Close()
}

// Locate 在屏幕内查找模板
func (r *Robot) Locate(tpl config.TemplateRef, region *Rect, timeout time.Duration) (Rect, bool) {
	tplMat, err := r.cache.get(tpl.Path)
	if err != nil {
		logger.Warn("定位失败: %v", err)
		return Rect{}, false
	}

	threshold := tpl.Confidence
	if threshold <= 0 {
		threshold = 0.85
	}

	return locateUntil(timeout, r.step, func() (Rect, bool) {
		var img image.Image
		var capErr error
		offX, offY := 0, 0
		if region != nil {
			img, capErr = r.CaptureRegion(*region)
			offX, offY = region.X, region.Y
		} else {
			img, capErr = robotgo.CaptureImg()
		}
		if capErr != nil {
			logger.Warn("截屏失败: %v", capErr)
			return Rect{}, false
		}

		hit, ok, matchErr := matchTemplate(img, tplMat, threshold)
		if matchErr != nil {
			logger.Warn("模板匹配失败: %v", matchErr)
			return Rect{}, false
		}
		if !ok {
			return Rect{}, false
		}
		hit.X += offX
		hit.Y += offY
		return hit, true
	})
}

// ClickCenter 点击矩形中心
func (r *Robot) ClickCenter(rect Rect) {
	c := rect.Center()
	r.ClickAt(c.X, c.Y)
}

// ClickAt 点击指定坐标
func (r *Robot) ClickAt(x, y int) {
	robotgo.Move(x, y)
	time.Sleep(clickSettle)
	robotgo.Click("left", false)
}

// MoveTo 移动鼠标
func (r *Robot) MoveTo(x, y int) {
	robotgo.Move(x, y)
}

// TypeText 输入文本
func (r *Robot) TypeText(text string) {
	robotgo.TypeStr(text)
}

// KeyTap 按键
func (r *Robot) KeyTap(key string) {
	robotgo.KeyTap(key)
}

// CaptureRegion 截取屏幕区域
func (r *Robot) CaptureRegion(rect Rect) (image.Image, error) {
	img, err := robotgo.CaptureImg(rect.X, rect.Y, rect.W, rect.H)
	if err != nil {
		return nil, fmt.Errorf("截取区域失败: %w", err)
	}
	return img, nil
}

// Size 屏幕尺寸
func (r *Robot) Size() (int, int) {
	return robotgo.GetScreenSize()
}
