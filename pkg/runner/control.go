// Package runner 实现任务调度：校验、轮询/时间窗驱动、惩罚监测与软重启
package runner

import (
	"sync/atomic"
	"time"
)

// pausePollInterval 暂停状态的轮询间隔
const pausePollInterval = 50 * time.Millisecond

// Control 协作式暂停/停止信号
// 停止是单向的；暂停可以反复切换。累计暂停时长供按运行时间
// 计数的周期（如软重启间隔）扣除。
type Control struct {
	stopped     atomic.Bool
	paused      atomic.Bool
	pausedNanos atomic.Int64
}

// NewControl 创建控制信号
func NewControl() *Control {
	return &Control{}
}

// Stop 发出停止信号，不可撤销
func (c *Control) Stop() { c.stopped.Store(true) }

// Stopped 是否已停止
func (c *Control) Stopped() bool { return c.stopped.Load() }

// Pause 请求暂停
func (c *Control) Pause() { c.paused.Store(true) }

// Resume 恢复执行
func (c *Control) Resume() { c.paused.Store(false) }

// Paused 是否处于暂停
func (c *Control) Paused() bool { return c.paused.Load() }

// WaitWhilePaused 暂停期间阻塞，返回期间是否发生过暂停
// 停止信号会打断等待
func (c *Control) WaitWhilePaused() bool {
	if !c.paused.Load() {
		return false
	}
	start := time.Now()
	for c.paused.Load() && !c.stopped.Load() {
		time.Sleep(pausePollInterval)
	}
	c.pausedNanos.Add(int64(time.Since(start)))
	return true
}

// PausedTotal 累计暂停时长
func (c *Control) PausedTotal() time.Duration {
	return time.Duration(c.pausedNanos.Load())
}
