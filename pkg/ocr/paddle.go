package ocr

import (
	"fmt"
	"image"
	"strings"
	"sync"

	goocr "github.com/getcharzp/go-ocr"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
)

// PaddleEngine 本地 Paddle OCR（onnx）引擎
type PaddleEngine struct {
	mu     sync.Mutex
	engine goocr.Engine
}

var _ Engine = (*PaddleEngine)(nil)

// NewPaddleEngine 创建本地引擎，模型加载一次后复用
func NewPaddleEngine(cfg config.PaddleConfig) (*PaddleEngine, error) {
	engine, err := goocr.NewPaddleOcrEngine(goocr.Config{
		OnnxRuntimeLibPath: cfg.OnnxRuntimeLibPath,
		DetModelPath:       cfg.DetModelPath,
		RecModelPath:       cfg.RecModelPath,
		DictPath:           cfg.DictPath,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Paddle OCR 引擎失败: %w", err)
	}
	return &PaddleEngine{engine: engine}, nil
}

func (p *PaddleEngine) Name() string { return "paddle" }

// Recognize 识别图像并拼接全部文本
func (p *PaddleEngine) Recognize(img image.Image) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine == nil {
		return "", &TransportError{Engine: p.Name(), Err: fmt.Errorf("引擎已关闭")}
	}

	results, err := p.engine.RunOCR(img)
	if err != nil {
		return "", &TransportError{Engine: p.Name(), Err: err}
	}

	var parts []string
	for _, r := range results {
		if r.Text != "" {
			parts = append(parts, r.Text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close 释放引擎资源
func (p *PaddleEngine) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine != nil {
		p.engine.Destroy()
		p.engine = nil
	}
	return nil
}
