// Package ocr 提供价格识别用的多引擎 OCR 能力
// 远端 Umi-OCR 为首选，本地 Paddle / Tesseract 作为回退
package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Engine OCR 引擎：输入图像，输出识别出的原始文本
// 未识别到文字返回空串且 err 为 nil；传输/进程级故障返回 *TransportError
type Engine interface {
	Name() string
	Recognize(img image.Image) (string, error)
}

// TransportError 传输级故障（HTTP 连接失败、本地引擎崩溃等）
// 区别于“没认出文字”的正常分支，调用链上视为致命错误
type TransportError struct {
	Engine string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("OCR 引擎 %s 传输故障: %v", e.Engine, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport 判断是否为传输级故障
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Chain 按顺序尝试多个引擎
// 第一个返回非空文本的引擎胜出；出现过传输故障且没有引擎读出文本时，
// 故障上抛（回退引擎的空结果只是一次未识别，掩盖不了后端不可达）
type Chain struct {
	engines []Engine
}

// NewChain 创建引擎链
func NewChain(engines ...Engine) *Chain {
	return &Chain{engines: engines}
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.engines))
	for _, e := range c.engines {
		names = append(names, e.Name())
	}
	return strings.Join(names, "+")
}

// Recognize 依次调用各引擎直到得到非空文本
// 记录第一个传输故障；没有任何引擎读出文本时将其上抛
func (c *Chain) Recognize(img image.Image) (string, error) {
	if len(c.engines) == 0 {
		return "", &TransportError{Engine: "chain", Err: errors.New("没有可用的 OCR 引擎")}
	}

	var transportErr error
	for _, e := range c.engines {
		text, err := e.Recognize(img)
		if err != nil {
			if IsTransport(err) && transportErr == nil {
				transportErr = err
			}
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	if transportErr != nil {
		return "", transportErr
	}
	return "", nil
}
