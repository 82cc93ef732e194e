package runner

import (
	"time"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
)

// 惩罚弹窗的探测与确认窗口
const (
	penaltyLocateTimeout  = 600 * time.Millisecond
	penaltyConfirmTimeout = 2 * time.Second
)

// StreakSource 连续 OCR 失败计数来源
type StreakSource interface {
	MissStreak() int
	LastOK() time.Time
	ResetStreak()
}

// PenaltyMonitor 连续识别失败的惩罚检测
// 连续失败达到阈值且距上次成功超过冷却时间时，检查屏幕上的惩罚提示；
// 确认存在则点掉确认按钮并长时间等待，避免在惩罚期内空转。
type PenaltyMonitor struct {
	ops    screen.Ops
	cfg    *config.Config
	source StreakSource

	// sleep / now 注入以便测试
	sleep func(time.Duration)
	now   func() time.Time
}

// NewPenaltyMonitor 创建惩罚监测器
func NewPenaltyMonitor(ops screen.Ops, cfg *config.Config, source StreakSource) *PenaltyMonitor {
	return &PenaltyMonitor{
		ops:    ops,
		cfg:    cfg,
		source: source,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Check 执行一次惩罚检测，返回是否确认并处理了惩罚
// 阈值未达或距上次成功过近时直接返回（防抖），不做屏幕探测；
// 防抖窗口取确认延迟与 2 秒的较大者
func (m *PenaltyMonitor) Check() bool {
	streak := m.source.MissStreak()
	if streak < m.cfg.Tuning.OcrMissPenaltyThreshold {
		return false
	}

	debounce := time.Duration(m.cfg.Tuning.PenaltyConfirmDelaySec * float64(time.Second))
	if debounce < 2*time.Second {
		debounce = 2 * time.Second
	}
	if lastOK := m.source.LastOK(); !lastOK.IsZero() && m.now().Sub(lastOK) < debounce {
		return false
	}

	if _, ok := m.ops.Locate(m.cfg.Template(config.TplPenaltyWarning), nil, penaltyLocateTimeout); !ok {
		// 虚警：连续失败另有原因，清零计数继续
		logger.Debug("连续识别失败 %d 次但无惩罚提示，清零计数", streak)
		m.source.ResetStreak()
		return false
	}

	logger.Warn("检测到惩罚提示 (连续失败 %d 次)", streak)
	m.sleep(time.Duration(m.cfg.Tuning.PenaltyConfirmDelaySec * float64(time.Second)))

	if r, ok := m.ops.Locate(m.cfg.Template(config.TplBtnPenaltyConfirm), nil, penaltyConfirmTimeout); ok {
		m.ops.ClickCenter(r)
	}

	logger.Warn("等待惩罚冷却 %.0f 秒", m.cfg.Tuning.PenaltyWaitSec)
	m.sleep(time.Duration(m.cfg.Tuning.PenaltyWaitSec * float64(time.Second)))
	m.source.ResetStreak()
	return true
}
