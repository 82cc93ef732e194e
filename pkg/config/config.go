// Package config 提供引擎的类型化配置
// 所有配置在启动时加载并校验一次，运行期间只读
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// 模板语义键：引擎通过这些键查找模板文件与置信度
const (
	TplHomeIndicator     = "home_indicator"
	TplMarketIndicator   = "market_indicator"
	TplBtnHome           = "btn_home"
	TplBtnMarket         = "btn_market"
	TplInputSearch       = "input_search"
	TplBtnSearch         = "btn_search"
	TplBtnBuy            = "btn_buy"
	TplBtnClose          = "btn_close"
	TplBtnMax            = "btn_max"
	TplBuyOK             = "buy_ok"
	TplBuyFail           = "buy_fail"
	TplBtnLaunch         = "btn_launch"
	TplBtnSettings       = "btn_settings"
	TplBtnExit           = "btn_exit"
	TplBtnExitConfirm    = "btn_exit_confirm"
	TplPenaltyWarning    = "penalty_warning"
	TplBtnPenaltyConfirm = "btn_penalty_confirm"
)

// TemplateRef 模板引用：文件路径 + 匹配置信度
type TemplateRef struct {
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence"`
}

// GameConfig 游戏启动器配置
type GameConfig struct {
	ExePath             string  `json:"exe_path"`
	LaunchArgs          string  `json:"launch_args"`
	LauncherTimeoutSec  float64 `json:"launcher_timeout_sec"`
	LaunchClickDelaySec float64 `json:"launch_click_delay_sec"`
	StartupTimeoutSec   float64 `json:"startup_timeout_sec"`
}

// ROIConfig 平均单价区域配置
// ROI 几何完全跟随购买按钮；Scale 是截图后送 OCR 前的重采样倍率
type ROIConfig struct {
	DistanceFromBuyTop int     `json:"distance_from_buy_top"`
	Height             int     `json:"height"`
	Scale              float64 `json:"scale"`
	// ExchangeableExtra 支持联系人兑换的商品附加偏移
	ExchangeableExtra int `json:"exchangeable_extra"`
}

// UmiConfig Umi-OCR HTTP 服务配置
type UmiConfig struct {
	BaseURL    string                 `json:"base_url"`
	TimeoutSec float64                `json:"timeout_sec"`
	Options    map[string]interface{} `json:"options"`
}

// PaddleConfig 本地 Paddle OCR（onnx）配置
type PaddleConfig struct {
	OnnxRuntimeLibPath string `json:"onnxruntime_lib_path"`
	DetModelPath       string `json:"det_model_path"`
	RecModelPath       string `json:"rec_model_path"`
	DictPath           string `json:"dict_path"`
}

// OCRConfig OCR 引擎选择与回退顺序
type OCRConfig struct {
	// Engines 引擎名称列表，按回退顺序排列：umi / paddle / tesseract
	Engines []string `json:"engines"`
}

// Increment 单次购买成功的进度增量
type Increment struct {
	Normal  int `json:"normal"`
	WithMax int `json:"with_max"`
}

// TuningConfig 运行调优参数
type TuningConfig struct {
	OcrMissPenaltyThreshold int     `json:"ocr_miss_penalty_threshold"`
	PenaltyConfirmDelaySec  float64 `json:"penalty_confirm_delay_sec"`
	PenaltyWaitSec          float64 `json:"penalty_wait_sec"`
	OcrRoundWindowSec       float64 `json:"ocr_round_window_sec"`
	OcrRoundStepSec         float64 `json:"ocr_round_step_sec"`
	OcrRoundFailLimit       int     `json:"ocr_round_fail_limit"`
	BuyResultTimeoutSec     float64 `json:"buy_result_timeout_sec"`
	BuyResultStepSec        float64 `json:"buy_result_step_sec"`
	// RestockTypeQty 非 Max 类目补货时输入的固定数量
	RestockTypeQty int `json:"restock_type_qty"`
	// MaxCategories 使用“最大”按钮设置数量的商品大类
	MaxCategories []string `json:"max_categories"`
	// Increments 按商品大类配置进度增量，空键为默认值
	Increments map[string]Increment `json:"increments"`
	// SaveROIOnFail 识别失败时是否落盘标注后的 ROI 图
	SaveROIOnFail bool   `json:"save_roi_on_fail"`
	OutputDir     string `json:"output_dir"`
}

// Timings 流程关键时序参数（毫秒）
type Timings struct {
	StepDelayMS        int `json:"step_delay_ms"`
	PostCloseDetailMS  int `json:"post_close_detail_ms"`
	PostSuccessClickMS int `json:"post_success_click_ms"`
	PostNavMS          int `json:"post_nav_ms"`
}

// Config 引擎完整配置
type Config struct {
	Templates    map[string]TemplateRef `json:"templates"`
	Game         GameConfig             `json:"game"`
	AvgPriceArea ROIConfig              `json:"avg_price_area"`
	UmiOCR       UmiConfig              `json:"umi_ocr"`
	Paddle       PaddleConfig           `json:"paddle_ocr"`
	OCR          OCRConfig              `json:"ocr"`
	Tuning       TuningConfig           `json:"tuning"`
	Timings      Timings                `json:"timings"`
}

// Default 返回默认配置
func Default() *Config {
	tpl := func(name string, conf float64) TemplateRef {
		return TemplateRef{Path: filepath.Join("images", name), Confidence: conf}
	}
	return &Config{
		Templates: map[string]TemplateRef{
			TplHomeIndicator:     tpl("home_indicator.png", 0.85),
			TplMarketIndicator:   tpl("market_indicator.png", 0.85),
			TplBtnHome:           tpl("btn_home.png", 0.85),
			TplBtnMarket:         tpl("btn_market.png", 0.85),
			TplInputSearch:       tpl("input_search.png", 0.85),
			TplBtnSearch:         tpl("btn_search.png", 0.85),
			TplBtnBuy:            tpl("btn_buy.png", 0.88),
			TplBtnClose:          tpl("btn_close.png", 0.85),
			TplBtnMax:            tpl("btn_max.png", 0.85),
			TplBuyOK:             tpl("buy_ok.png", 0.90),
			TplBuyFail:           tpl("buy_fail.png", 0.88),
			TplBtnLaunch:         tpl("btn_launch.png", 0.85),
			TplBtnSettings:       tpl("btn_settings.png", 0.85),
			TplBtnExit:           tpl("btn_exit.png", 0.85),
			TplBtnExitConfirm:    tpl("btn_exit_confirm.png", 0.85),
			TplPenaltyWarning:    tpl("penalty_warning.png", 0.85),
			TplBtnPenaltyConfirm: tpl("btn_penalty_confirm.png", 0.85),
		},
		Game: GameConfig{
			LauncherTimeoutSec:  60,
			LaunchClickDelaySec: 20,
			StartupTimeoutSec:   180,
		},
		AvgPriceArea: ROIConfig{
			DistanceFromBuyTop: 5,
			Height:             45,
			Scale:              1.0,
			ExchangeableExtra:  30,
		},
		UmiOCR: UmiConfig{
			BaseURL:    "http://127.0.0.1:1224",
			TimeoutSec: 2.5,
		},
		OCR: OCRConfig{
			Engines: []string{"umi", "paddle"},
		},
		Tuning: TuningConfig{
			OcrMissPenaltyThreshold: 10,
			PenaltyConfirmDelaySec:  5,
			PenaltyWaitSec:          180,
			OcrRoundWindowSec:       0.5,
			OcrRoundStepSec:         0.02,
			OcrRoundFailLimit:       10,
			BuyResultTimeoutSec:     0.8,
			BuyResultStepSec:        0.02,
			RestockTypeQty:          5,
			MaxCategories:           []string{"弹药"},
			Increments: map[string]Increment{
				"弹药": {Normal: 10, WithMax: 120},
				"":   {Normal: 1, WithMax: 5},
			},
			OutputDir: "output",
		},
		Timings: Timings{
			StepDelayMS:        15,
			PostCloseDetailMS:  100,
			PostSuccessClickMS: 300,
			PostNavMS:          100,
		},
	}
}

// Template 按语义键查找模板引用，缺失时返回零值
func (c *Config) Template(key string) TemplateRef {
	if c == nil || c.Templates == nil {
		return TemplateRef{}
	}
	return c.Templates[key]
}

// IsMaxCategory 判断商品大类是否使用“最大”按钮设置数量
func (c *Config) IsMaxCategory(category string) bool {
	for _, mc := range c.Tuning.MaxCategories {
		if mc == category {
			return true
		}
	}
	return false
}

// IncrementFor 查询指定大类的进度增量
func (c *Config) IncrementFor(category string, usedMax bool) int {
	inc, ok := c.Tuning.Increments[category]
	if !ok {
		inc, ok = c.Tuning.Increments[""]
		if !ok {
			inc = Increment{Normal: 1, WithMax: 5}
		}
	}
	if usedMax {
		if inc.WithMax > 0 {
			return inc.WithMax
		}
		return 1
	}
	if inc.Normal > 0 {
		return inc.Normal
	}
	return 1
}

// Normalize 将越界参数收敛到合法区间
func (c *Config) Normalize() {
	if c.AvgPriceArea.Scale < 0.6 {
		c.AvgPriceArea.Scale = 0.6
	}
	if c.AvgPriceArea.Scale > 2.5 {
		c.AvgPriceArea.Scale = 2.5
	}
	if c.AvgPriceArea.Height <= 0 {
		c.AvgPriceArea.Height = 45
	}
	if c.AvgPriceArea.DistanceFromBuyTop < 0 {
		c.AvgPriceArea.DistanceFromBuyTop = 0
	}
	if c.UmiOCR.TimeoutSec <= 0 {
		c.UmiOCR.TimeoutSec = 2.5
	}
	if c.Tuning.OcrMissPenaltyThreshold <= 0 {
		c.Tuning.OcrMissPenaltyThreshold = 10
	}
	if c.Tuning.OcrRoundFailLimit <= 0 {
		c.Tuning.OcrRoundFailLimit = 10
	}
	if c.Tuning.BuyResultTimeoutSec <= 0 {
		c.Tuning.BuyResultTimeoutSec = 0.8
	}
	if c.Tuning.RestockTypeQty <= 0 {
		c.Tuning.RestockTypeQty = 5
	}
	if c.Timings.StepDelayMS <= 0 {
		c.Timings.StepDelayMS = 15
	}
}

// ValidateTemplates 校验关键模板文件是否存在
// keys 为空时校验全部已配置模板
func (c *Config) ValidateTemplates(keys ...string) error {
	if len(keys) == 0 {
		for k := range c.Templates {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		ref, ok := c.Templates[k]
		if !ok || ref.Path == "" {
			return fmt.Errorf("模板 %s 未配置", k)
		}
		if _, err := os.Stat(ref.Path); err != nil {
			return fmt.Errorf("模板 %s 文件不存在: %s", k, ref.Path)
		}
	}
	return nil
}
