package price

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
)

var (
	debugFont     *truetype.Font
	debugFontOnce sync.Once
)

func loadDebugFont() *truetype.Font {
	debugFontOnce.Do(func() {
		f, err := freetype.ParseFont(goregular.TTF)
		if err != nil {
			logger.Warn("加载标注字体失败: %v", err)
			return
		}
		debugFont = f
	})
	return debugFont
}

// SaveDebugROI 将识别失败的 ROI 图带原始 OCR 文本标注后落盘
// 只用于排查识别问题，任何失败都只记日志
func SaveDebugROI(dir string, roi image.Image, rawText string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("创建输出目录失败: %v", err)
		return
	}

	bounds := roi.Bounds()
	// 底部留白写标注文字
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()+24))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, bounds.Sub(bounds.Min), roi, bounds.Min, draw.Src)

	if f := loadDebugFont(); f != nil {
		c := freetype.NewContext()
		c.SetDPI(72)
		c.SetFont(f)
		c.SetFontSize(14)
		c.SetClip(canvas.Bounds())
		c.SetDst(canvas)
		c.SetSrc(image.NewUniform(color.RGBA{255, 0, 0, 255}))
		c.SetHinting(font.HintingFull)

		label := rawText
		if label == "" {
			label = "(空)"
		}
		pt := freetype.Pt(2, bounds.Dy()+int(c.PointToFixed(14)>>6))
		if _, err := c.DrawString(label, pt); err != nil {
			logger.Debug("绘制标注文字失败: %v", err)
		}
	}

	name := fmt.Sprintf("roi_%s.png", time.Now().Format("20060102_150405.000"))
	fp := filepath.Join(dir, name)
	f, err := os.Create(fp)
	if err != nil {
		logger.Warn("保存 ROI 调试图失败: %v", err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, canvas); err != nil {
		logger.Warn("编码 ROI 调试图失败: %v", err)
	}
}
