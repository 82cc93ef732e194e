// Package price 实现均价识别管线：ROI 计算、图像预处理、OCR 与数值解析
package price

import (
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
)

// ComputeROI 由购买按钮矩形推算均价所在区域
// 均价行锚定在按钮上方：底边距按钮顶部 distance 像素，高度 height，
// 宽度与按钮相同（缩放在截图后的重采样阶段做，不改几何）。
// 支持兑换的商品价格行更靠上，额外上移 ExchangeableExtra。
// 返回的矩形已收敛进屏幕边界；无有效面积时 ok 为 false。
func ComputeROI(anchor screen.Rect, cfg config.ROIConfig, exchangeable bool, screenW, screenH int) (screen.Rect, bool) {
	if anchor.Empty() || screenW <= 0 || screenH <= 0 {
		return screen.Rect{}, false
	}

	dist := cfg.DistanceFromBuyTop
	if exchangeable {
		dist += cfg.ExchangeableExtra
	}

	yBottom := anchor.Y - dist
	roi := screen.Rect{
		X: anchor.X,
		Y: yBottom - cfg.Height,
		W: anchor.W,
		H: cfg.Height,
	}
	roi = roi.Clamp(screenW, screenH)
	if roi.Empty() {
		return screen.Rect{}, false
	}
	return roi, true
}

// splitHalves 将 ROI 水平切成上下两半
// 价格行通常在上半，下半作为回退
func splitHalves(roi screen.Rect) (top, bottom screen.Rect) {
	half := roi.H / 2
	if half <= 0 {
		return roi, screen.Rect{}
	}
	top = screen.Rect{X: roi.X, Y: roi.Y, W: roi.W, H: half}
	bottom = screen.Rect{X: roi.X, Y: roi.Y + half, W: roi.W, H: roi.H - half}
	return top, bottom
}
