package ocr

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine 基于本机 tesseract 的引擎，作为最后回退
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

var _ Engine = (*TesseractEngine)(nil)

// NewTesseractEngine 创建 tesseract 引擎
// 白名单限定为价格字符，按单行文本识别
func NewTesseractEngine() *TesseractEngine {
	client := gosseract.NewClient()
	client.SetWhitelist("0123456789KMkm.,")
	client.SetPageSegMode(gosseract.PSM_SINGLE_LINE)
	return &TesseractEngine{client: client}
}

func (t *TesseractEngine) Name() string { return "tesseract" }

// Recognize 识别图像文本
func (t *TesseractEngine) Recognize(img image.Image) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return "", &TransportError{Engine: t.Name(), Err: errClosed}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", &TransportError{Engine: t.Name(), Err: err}
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", &TransportError{Engine: t.Name(), Err: err}
	}

	text, err := t.client.Text()
	if err != nil {
		return "", &TransportError{Engine: t.Name(), Err: err}
	}
	return strings.TrimSpace(text), nil
}

// Close 释放底层 tesseract 句柄
func (t *TesseractEngine) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
