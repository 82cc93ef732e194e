package ocr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
)

// Umi-OCR HTTP 接口返回码
const (
	umiCodeOK     = 100 // 识别成功，data 为结果列表
	umiCodeNoText = 101 // 图中无文字
)

type umiRequest struct {
	Base64  string                 `json:"base64"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type umiResponse struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
}

// UmiEngine 远端 Umi-OCR HTTP 引擎
type UmiEngine struct {
	client  *resty.Client
	options map[string]interface{}
}

var _ Engine = (*UmiEngine)(nil)

// NewUmiEngine 创建 Umi-OCR 客户端
func NewUmiEngine(cfg config.UmiConfig) *UmiEngine {
	timeout := time.Duration(cfg.TimeoutSec * float64(time.Second))
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &UmiEngine{client: client, options: cfg.Options}
}

func (u *UmiEngine) Name() string { return "umi" }

// Recognize 将图像编码为 base64 提交识别
func (u *UmiEngine) Recognize(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", &TransportError{Engine: u.Name(), Err: fmt.Errorf("PNG 编码失败: %w", err)}
	}

	var result umiResponse
	resp, err := u.client.R().
		SetBody(umiRequest{
			Base64:  base64.StdEncoding.EncodeToString(buf.Bytes()),
			Options: u.options,
		}).
		SetResult(&result).
		Post("/api/ocr")
	if err != nil {
		return "", &TransportError{Engine: u.Name(), Err: err}
	}
	if resp.StatusCode() != 200 {
		return "", &TransportError{Engine: u.Name(), Err: fmt.Errorf("HTTP %d", resp.StatusCode())}
	}

	switch result.Code {
	case umiCodeOK:
		return joinUmiEntries(result.Data), nil
	case umiCodeNoText:
		return "", nil
	default:
		return "", &TransportError{Engine: u.Name(), Err: fmt.Errorf("服务返回码 %d", result.Code)}
	}
}

// joinUmiEntries 拼接结果列表中的全部文本
func joinUmiEntries(data interface{}) string {
	list, ok := data.([]interface{})
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := m["text"].(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
