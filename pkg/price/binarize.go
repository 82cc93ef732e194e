package price

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
)

// Preprocess OCR 前处理：按配置倍率重采样、灰度化、Otsu 二值化
// scale 为 1.0 时跳过重采样；gocv 转换失败时退回纯 Go 的固定阈值二值化
// （回退路径不做重采样）
func Preprocess(img image.Image, scale float64) image.Image {
	if scale <= 0 {
		scale = 1.0
	}
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		logger.Debug("图像转换失败，使用固定阈值回退: %v", err)
		return binarizeFixed(img)
	}
	defer src.Close()

	work := src
	if scale != 1.0 {
		scaled := gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(src, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
		work = scaled
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(work, &gray, gocv.ColorRGBToGray)

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	out, err := bin.ToImage()
	if err != nil {
		logger.Debug("二值化结果转换失败，使用固定阈值回退: %v", err)
		return binarizeFixed(img)
	}
	return out
}

// binarizeFixed 纯 Go 固定阈值二值化（亮度 128）
func binarizeFixed(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y >= 128 {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
