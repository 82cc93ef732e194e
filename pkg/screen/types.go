// Package screen 提供屏幕定位、截图与输入能力
// 引擎通过 Ops 接口使用本包，便于在测试中替换为假实现
package screen

import "image"

// Point 屏幕坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect 屏幕矩形区域
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center 矩形中心点
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Empty 判断矩形是否无有效面积
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Clamp 将矩形收敛到 [0,w)×[0,h) 边界内
// 完全越界时返回空矩形
func (r Rect) Clamp(w, h int) Rect {
	x0, y0 := r.X, r.Y
	x1, y1 := r.X+r.W, r.Y+r.H
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// ToImageRect 转换为标准库矩形
func (r Rect) ToImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}
