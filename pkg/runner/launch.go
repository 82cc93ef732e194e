package runner

import (
	"fmt"
	"os"
	"time"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/process"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
)

// 启动流程错误码
const (
	LaunchErrMissingConfig            = "missing_config"
	LaunchErrExeMissing               = "exe_missing"
	LaunchErrMissingLaunchTemplate    = "missing_launch_template"
	LaunchErrMissingIndicatorTemplate = "missing_indicator_template"
	LaunchErrLaunchError              = "launch_error"
	LaunchErrButtonTimeout            = "launch_button_timeout"
	LaunchErrHomeTimeout              = "home_timeout"
)

// LaunchError 启动流程失败，Code 为稳定的错误码
type LaunchError struct {
	Code string
	Msg  string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("启动流程失败 [%s]: %s", e.Code, e.Msg)
}

func launchErr(code, format string, args ...interface{}) *LaunchError {
	return &LaunchError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// RunLaunchFlow 启动目标应用直到主界面就绪
// 已在主界面时直接返回；否则拉起启动器，等待并点击启动按钮，
// 然后等待主界面标志出现。
func RunLaunchFlow(ops screen.Ops, cfg *config.Config) error {
	game := cfg.Game
	if game.ExePath == "" {
		return launchErr(LaunchErrMissingConfig, "未配置启动器路径")
	}
	if _, err := os.Stat(game.ExePath); err != nil {
		return launchErr(LaunchErrExeMissing, "启动器不存在: %s", game.ExePath)
	}

	launchTpl := cfg.Template(config.TplBtnLaunch)
	if launchTpl.Path == "" {
		return launchErr(LaunchErrMissingLaunchTemplate, "未配置启动按钮模板")
	}
	homeTpl := cfg.Template(config.TplHomeIndicator)
	if homeTpl.Path == "" {
		return launchErr(LaunchErrMissingIndicatorTemplate, "未配置主界面标志模板")
	}

	// 已经在主界面就不折腾了
	if _, ok := ops.Locate(homeTpl, nil, 0); ok {
		logger.Info("主界面已就绪，跳过启动流程")
		return nil
	}

	if !process.IsRunningByExe(game.ExePath) {
		pid, err := process.StartDetached(game.ExePath, game.LaunchArgs)
		if err != nil {
			return launchErr(LaunchErrLaunchError, "拉起启动器失败: %v", err)
		}
		logger.Info("已拉起启动器 PID=%d", pid)
	}

	launcherTimeout := time.Duration(game.LauncherTimeoutSec * float64(time.Second))
	btn, ok := ops.Locate(launchTpl, nil, launcherTimeout)
	if !ok {
		return launchErr(LaunchErrButtonTimeout, "等待启动按钮超时 (%.0fs)", game.LauncherTimeoutSec)
	}
	ops.ClickCenter(btn)
	logger.Info("已点击启动按钮，等待游戏进程")
	time.Sleep(time.Duration(game.LaunchClickDelaySec * float64(time.Second)))

	startupTimeout := time.Duration(game.StartupTimeoutSec * float64(time.Second))
	if _, ok := ops.Locate(homeTpl, nil, startupTimeout); !ok {
		return launchErr(LaunchErrHomeTimeout, "等待主界面超时 (%.0fs)", game.StartupTimeoutSec)
	}
	logger.Info("主界面就绪")
	return nil
}
