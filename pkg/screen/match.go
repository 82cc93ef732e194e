package screen

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// templateCache 模板图像缓存，按文件路径缓存灰度 Mat
type templateCache struct {
	mu   sync.Mutex
	mats map[string]gocv.Mat
}

func newTemplateCache() *templateCache {
	return &templateCache{mats: make(map[string]gocv.Mat)}
}

// get 加载模板灰度图，同一路径只读盘一次
func (c *templateCache) get(path string) (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.mats[path]; ok {
		return m, nil
	}
	m := gocv.IMRead(path, gocv.IMReadGrayScale)
	if m.Empty() {
		return gocv.Mat{}, fmt.Errorf("模板加载失败: %s", path)
	}
	c.mats[path] = m
	return m, nil
}

// Close 释放全部缓存模板
func (c *templateCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, m := range c.mats {
		m.Close()
		delete(c.mats, path)
	}
}

// matchTemplate 在源图中做灰度归一化相关匹配
// 命中返回源图坐标系内的矩形，置信度低于阈值视为未命中
func matchTemplate(source image.Image, tplGray gocv.Mat, threshold float64) (Rect, bool, error) {
	src, err := gocv.ImageToMatRGB(source)
	if err != nil {
		return Rect{}, false, fmt.Errorf("转换图像失败: %w", err)
	}
	defer src.Close()

	srcGray := gocv.NewMat()
	defer srcGray.Close()
	gocv.CvtColor(src, &srcGray, gocv.ColorRGBToGray)

	if srcGray.Rows() < tplGray.Rows() || srcGray.Cols() < tplGray.Cols() {
		return Rect{}, false, nil
	}

	result := gocv.NewMat()
	defer result.Close()
	gocv.MatchTemplate(srcGray, tplGray, &result, gocv.TmCcoeffNormed, gocv.NewMat())

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	if float64(maxVal) < threshold {
		return Rect{}, false, nil
	}
	return Rect{X: maxLoc.X, Y: maxLoc.Y, W: tplGray.Cols(), H: tplGray.Rows()}, true, nil
}
