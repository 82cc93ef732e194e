package runner

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/process"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
)

// 软重启各阶段等待
const (
	restartStepWait     = 5 * time.Second
	restartProcessWait  = 30 * time.Second
	restartClickTimeout = 5 * time.Second
)

// RestartController 周期性软重启
// 通过设置菜单退出游戏再走一遍启动流程，清掉长时间运行积累的卡顿；
// 重启后所有位置缓存必须由调用方失效。
type RestartController struct {
	ops screen.Ops
	cfg *config.Config

	// launch 注入启动流程，便于测试
	launch func(screen.Ops, *config.Config) error
	sleep  func(time.Duration)
}

// NewRestartController 创建软重启控制器
func NewRestartController(ops screen.Ops, cfg *config.Config) *RestartController {
	return &RestartController{
		ops:    ops,
		cfg:    cfg,
		launch: RunLaunchFlow,
		sleep:  time.Sleep,
	}
}

// Run 执行一次软重启
// 退出序列：主页 → 设置 → 退出 → 确认退出，每步之间固定等待；
// 随后等进程退场（超时强杀）再走启动流程。重启失败是致命错误。
func (r *RestartController) Run() error {
	logger.Info("开始软重启")

	steps := []struct {
		key  string
		desc string
	}{
		{config.TplBtnHome, "主页"},
		{config.TplBtnSettings, "设置"},
		{config.TplBtnExit, "退出"},
		{config.TplBtnExitConfirm, "确认退出"},
	}
	for _, step := range steps {
		rect, ok := r.ops.Locate(r.cfg.Template(step.key), nil, restartClickTimeout)
		if !ok {
			logger.Warn("软重启：找不到%s按钮，继续后续步骤", step.desc)
			continue
		}
		r.ops.ClickCenter(rect)
		r.sleep(restartStepWait)
	}

	// 给进程留足退场时间，仍未退出则强杀
	r.sleep(restartProcessWait)
	r.killLingering()

	if err := r.launch(r.ops, r.cfg); err != nil {
		return fmt.Errorf("软重启后拉起失败: %w", err)
	}
	logger.Info("软重启完成")
	return nil
}

// killLingering 强制结束没按时退出的目标进程
func (r *RestartController) killLingering() {
	exe := r.cfg.Game.ExePath
	if exe == "" || !process.IsRunningByExe(exe) {
		return
	}
	procs, err := process.FindByName(filepath.Base(exe))
	if err != nil {
		logger.Warn("软重启：查找残留进程失败: %v", err)
		return
	}
	for _, p := range procs {
		logger.Warn("软重启：进程未按时退出，强制结束 PID=%d (%s)", p.PID, p.Name)
		if err := process.Kill(p.PID); err != nil {
			logger.Warn("软重启：结束进程失败: %v", err)
		}
	}
}
