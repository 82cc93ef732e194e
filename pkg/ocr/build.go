package ocr

import (
	"errors"
	"fmt"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
)

var errClosed = errors.New("引擎已关闭")

// Build 按配置的回退顺序构建引擎链
// 本地引擎初始化失败时跳过并告警，至少要有一个引擎可用
func Build(cfg *config.Config) (*Chain, error) {
	var engines []Engine
	for _, name := range cfg.OCR.Engines {
		switch name {
		case "umi":
			engines = append(engines, NewUmiEngine(cfg.UmiOCR))
		case "paddle":
			p, err := NewPaddleEngine(cfg.Paddle)
			if err != nil {
				logger.Warn("Paddle OCR 不可用，跳过: %v", err)
				continue
			}
			engines = append(engines, p)
		case "tesseract":
			engines = append(engines, NewTesseractEngine())
		default:
			return nil, fmt.Errorf("未知的 OCR 引擎: %s", name)
		}
	}
	if len(engines) == 0 {
		return nil, errors.New("没有可用的 OCR 引擎")
	}
	return NewChain(engines...), nil
}
