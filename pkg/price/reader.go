package price

import (
	"fmt"
	"sync"
	"time"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/ocr"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
)

// Reader 均价读取器
// 读到合理价格返回正数；正常的“没读到”返回 0 且 err 为 nil；
// 只有 OCR 传输级故障才返回非 nil 错误。
// 连续失败计数与最近成功时间供惩罚监测使用。
type Reader struct {
	ops    screen.Ops
	engine ocr.Engine
	cfg    *config.Config

	mu         sync.Mutex
	missStreak int
	lastOK     time.Time

	// now 注入时钟，便于测试
	now func() time.Time
}

// NewReader 创建均价读取器
func NewReader(ops screen.Ops, engine ocr.Engine, cfg *config.Config) *Reader {
	return &Reader{ops: ops, engine: engine, cfg: cfg, now: time.Now}
}

// MissStreak 当前连续失败次数
func (r *Reader) MissStreak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.missStreak
}

// LastOK 最近一次成功读取的时间，从未成功时为零值
func (r *Reader) LastOK() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOK
}

// ResetStreak 清零连续失败计数（惩罚处理完毕后调用）
func (r *Reader) ResetStreak() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missStreak = 0
}

func (r *Reader) recordHit() {
	r.mu.Lock()
	r.missStreak = 0
	r.lastOK = r.now()
	r.mu.Unlock()
}

func (r *Reader) recordMiss() {
	r.mu.Lock()
	r.missStreak++
	r.mu.Unlock()
}

// ReadOnce 做一轮识别：先读 ROI 上半，必要时回退下半
// allowBottom 为 false 时禁用下半回退（补货流程的价格行位置固定）
func (r *Reader) ReadOnce(anchor screen.Rect, exchangeable bool, expectedFloor int, allowBottom bool) (int, error) {
	start := time.Now()
	sw, sh := r.ops.Size()

	roi, ok := ComputeROI(anchor, r.cfg.AvgPriceArea, exchangeable, sw, sh)
	if !ok {
		r.recordMiss()
		logger.LogEvent("OCR", false, elapsedMs(start), "ROI 越界")
		return 0, nil
	}

	regions := []screen.Rect{roi}
	if top, bottom := splitHalves(roi); !bottom.Empty() {
		if allowBottom {
			regions = []screen.Rect{top, bottom}
		} else {
			regions = []screen.Rect{top}
		}
	}

	var lastRaw string
	for _, region := range regions {
		price, raw, err := r.readRegion(region, expectedFloor)
		if err != nil {
			logger.LogEvent("OCR", false, elapsedMs(start), err.Error())
			return 0, err
		}
		lastRaw = raw
		if price > 0 {
			r.recordHit()
			logger.LogEvent("OCR", true, elapsedMs(start), fmt.Sprintf("均价 %d (%q)", price, raw))
			return price, nil
		}
	}

	r.recordMiss()
	logger.LogEvent("OCR", false, elapsedMs(start), fmt.Sprintf("未读到价格 (%q)", lastRaw))
	if r.cfg.Tuning.SaveROIOnFail {
		if img, err := r.ops.CaptureRegion(roi); err == nil {
			SaveDebugROI(r.cfg.Tuning.OutputDir, img, lastRaw)
		}
	}
	return 0, nil
}

// readRegion 截取区域、预处理并识别
func (r *Reader) readRegion(region screen.Rect, expectedFloor int) (int, string, error) {
	img, err := r.ops.CaptureRegion(region)
	if err != nil {
		// 截屏失败按一次普通失败处理
		logger.Warn("截取价格区域失败: %v", err)
		return 0, "", nil
	}

	raw, err := r.engine.Recognize(Preprocess(img, r.cfg.AvgPriceArea.Scale))
	if err != nil {
		if ocr.IsTransport(err) {
			return 0, raw, err
		}
		return 0, raw, nil
	}

	price, ok := ParsePrice(raw)
	if !ok {
		return 0, raw, nil
	}
	if !PlausibleAgainstFloor(price, expectedFloor) {
		logger.Debug("价格 %d 低于底价 %d 的一半，按误读丢弃", price, expectedFloor)
		return 0, raw, nil
	}
	return price, raw, nil
}

// ReadWithRounds 在时间窗内反复识别直到读到价格
// 窗口耗尽或本轮连续失败达到上限时放弃（返回 0）
func (r *Reader) ReadWithRounds(anchor screen.Rect, exchangeable bool, expectedFloor int, allowBottom bool) (int, error) {
	window := time.Duration(r.cfg.Tuning.OcrRoundWindowSec * float64(time.Second))
	step := time.Duration(r.cfg.Tuning.OcrRoundStepSec * float64(time.Second))
	if step <= 0 {
		step = 20 * time.Millisecond
	}
	failLimit := r.cfg.Tuning.OcrRoundFailLimit

	deadline := time.Now().Add(window)
	fails := 0
	for {
		price, err := r.ReadOnce(anchor, exchangeable, expectedFloor, allowBottom)
		if err != nil {
			return 0, err
		}
		if price > 0 {
			return price, nil
		}
		fails++
		if fails >= failLimit || !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(step)
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
