// Package process 提供目标应用的进程查找与拉起
package process

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Info 进程信息
type Info struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// FindByName 按名称查找进程（不区分大小写，支持部分匹配）
func FindByName(name string) ([]Info, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	name = strings.ToLower(name)
	var matches []Info
	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		procName, err := proc.Name()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(procName), name) {
			exe, _ := proc.Exe()
			matches = append(matches, Info{PID: int(pid), Name: procName, Path: exe})
		}
	}
	return matches, nil
}

// IsRunningByExe 判断某可执行文件对应的进程是否存活
func IsRunningByExe(exePath string) bool {
	if exePath == "" {
		return false
	}
	matches, err := FindByName(filepath.Base(exePath))
	if err != nil {
		return false
	}
	return len(matches) > 0
}

// Kill 终止进程
func Kill(pid int) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("进程不存在: PID=%d", pid)
	}
	return proc.Kill()
}

// StartDetached 以分离方式拉起可执行文件
// 启动器自行管理生命周期，这里不等待也不回收
func StartDetached(exePath string, args string) (int, error) {
	var argv []string
	if args != "" {
		argv = strings.Fields(args)
	}
	cmd := exec.Command(exePath, argv...)
	cmd.Dir = filepath.Dir(exePath)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("启动进程失败: %w", err)
	}
	pid := cmd.Process.Pid
	// 放掉子进程句柄，避免僵尸等待
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
