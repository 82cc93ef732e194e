package runner

import (
	"errors"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/buyer"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/price"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/store"
)

// idleSleep 时间窗模式下无任务命中时的待机间隔
const idleSleep = 1200 * time.Millisecond

// Observer 购买进度回调，在每次成功累加后触发
type Observer func(taskID string, purchased int)

// TaskRunner 任务调度器
// 启动时做一次任务校验，随后按配置的模式驱动购买循环
type TaskRunner struct {
	cfg     *config.Config
	tasks   *store.TaskStore
	goods   *store.GoodsStore
	ops     screen.Ops
	reader  *price.Reader
	sink    buyer.Sink
	ctrl    *Control
	penalty *PenaltyMonitor
	restart *RestartController

	buyers      map[string]*buyer.Buyer
	observer    Observer
	lastRestart time.Time
	// pausedMark 上次重启计时起点处的累计暂停时长
	pausedMark time.Duration

	// idleLog 限流待机日志，避免刷屏
	idleLog *rate.Limiter
	now     func() time.Time
}

// New 创建调度器
func New(cfg *config.Config, tasks *store.TaskStore, goods *store.GoodsStore, ops screen.Ops, reader *price.Reader, sink buyer.Sink) *TaskRunner {
	ctrl := NewControl()
	return &TaskRunner{
		cfg:     cfg,
		tasks:   tasks,
		goods:   goods,
		ops:     ops,
		reader:  reader,
		sink:    sink,
		ctrl:    ctrl,
		penalty: NewPenaltyMonitor(ops, cfg, reader),
		restart: NewRestartController(ops, cfg),
		buyers:  make(map[string]*buyer.Buyer),
		idleLog: rate.NewLimiter(rate.Every(5*time.Second), 1),
		now:     time.Now,
	}
}

// Control 暴露控制信号（停止/暂停）
func (r *TaskRunner) Control() *Control { return r.ctrl }

// SetObserver 注册进度回调
func (r *TaskRunner) SetObserver(fn Observer) { r.observer = fn }

// Validate 启动时的一次性任务校验
// 商品可解析、搜索词非空、列表模板文件存在的任务才有效；
// 无效任务整轮跳过，不再复查。返回有效任务数。
func (r *TaskRunner) Validate() int {
	valid := 0
	for _, t := range r.tasks.Tasks() {
		g := r.goods.ByID(t.ItemID)
		switch {
		case g == nil:
			logger.Warn("任务 %s 无效：商品 %s 不存在", t.ID, t.ItemID)
			t.SetValid(false)
		case g.SearchName == "":
			logger.Warn("任务 %s 无效：商品 %s 缺少搜索词", t.ID, g.Name)
			t.SetValid(false)
		case !fileExists(g.ImagePath):
			logger.Warn("任务 %s 无效：商品 %s 模板文件不存在 (%s)", t.ID, g.Name, g.ImagePath)
			t.SetValid(false)
		default:
			t.SetValid(true)
			valid++
		}
	}
	return valid
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Run 执行调度主循环直到停止或致命错误
func (r *TaskRunner) Run() error {
	if r.Validate() == 0 {
		return errors.New("没有有效任务")
	}
	if err := RunLaunchFlow(r.ops, r.cfg); err != nil {
		return err
	}
	r.lastRestart = r.now()
	r.pausedMark = r.ctrl.PausedTotal()

	mode := r.tasks.File().TaskMode
	logger.Info("调度启动，模式=%s", mode)
	switch mode {
	case store.ModeTimeWindow:
		return r.runTimeWindow()
	default:
		return r.runRoundRobin()
	}
}

// buyerFor 每个商品一个购买执行器，会话内复用
func (r *TaskRunner) buyerFor(g *store.Goods) *buyer.Buyer {
	if b, ok := r.buyers[g.ID]; ok {
		return b
	}
	b := buyer.NewBuyer(r.ops, r.cfg, r.reader, g, r.sink, r.ctrl)
	r.buyers[g.ID] = b
	return b
}

// maybeRestart 重启周期到点时执行软重启
// 周期按运行时间计算，暂停时长不计入；
// 返回重启耗时（供段计时扣除）与是否发生了重启；重启失败是致命错误
func (r *TaskRunner) maybeRestart() (time.Duration, bool, error) {
	every := time.Duration(r.tasks.File().RestartEveryMin) * time.Minute
	if every <= 0 {
		return 0, false, nil
	}
	active := r.now().Sub(r.lastRestart) - (r.ctrl.PausedTotal() - r.pausedMark)
	if active < every {
		return 0, false, nil
	}

	start := r.now()
	if err := r.restart.Run(); err != nil {
		r.ctrl.Stop()
		return r.now().Sub(start), false, err
	}
	// 重启后画面全变，所有缓存作废
	for _, b := range r.buyers {
		b.Cache().InvalidateAll()
	}
	r.lastRestart = r.now()
	r.pausedMark = r.ctrl.PausedTotal()
	return r.now().Sub(start), true, nil
}

// recordGot 累加购买进度并通知观察者
func (r *TaskRunner) recordGot(task *store.Task, got int) {
	if got <= 0 {
		return
	}
	if err := r.tasks.AddPurchased(task.ID, got); err != nil {
		logger.Warn("保存购买进度失败: %v", err)
	}
	logger.Info("任务 %s 进度 %d/%d", task.ID, task.Purchased, task.TargetTotal)
	if r.observer != nil {
		r.observer(task.ID, task.Purchased)
	}
}

// runRoundRobin 轮询驱动：按顺序给每个可执行任务跑一段固定时长
func (r *TaskRunner) runRoundRobin() error {
	idx := 0
	for !r.ctrl.Stopped() {
		tasks := r.tasks.Tasks()
		found := nextRunnable(tasks, idx)
		if found < 0 {
			if allDisqualified(tasks) {
				logger.Info("全部任务完成或不可执行，调度结束")
				return nil
			}
			time.Sleep(idleSleep)
			continue
		}
		idx = found + 1

		if err := r.runSegment(tasks[found]); err != nil {
			r.ctrl.Stop()
			return err
		}
	}
	return nil
}

// nextRunnable 从 idx 起顺时针找第一个可执行任务
func nextRunnable(tasks []*store.Task, idx int) int {
	n := len(tasks)
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		j := (idx + i) % n
		if tasks[j].Runnable() {
			return j
		}
	}
	return -1
}

// allDisqualified 判断是否所有任务都已完成或永久不可执行
func allDisqualified(tasks []*store.Task) bool {
	for _, t := range tasks {
		if t.Enabled && t.Valid() && !t.Complete() {
			return false
		}
	}
	return true
}

// runSegment 给单个任务跑一段固定时长的购买循环
// 软重启的耗时不计入段时长
func (r *TaskRunner) runSegment(task *store.Task) error {
	g := r.goods.ByID(task.ItemID)
	b := r.buyerFor(g)

	if !b.EnsureSearchContext() {
		logger.Warn("任务 %s 搜索上下文建立失败，跳过本段", task.ID)
		return nil
	}

	segment := time.Duration(task.DurationMin) * time.Minute
	if segment <= 0 {
		segment = time.Minute
	}
	segStart := r.now()
	var pausedAdj time.Duration

	for !r.ctrl.Stopped() && task.Runnable() {
		if r.now().Sub(segStart)-pausedAdj >= segment {
			break
		}

		elapsed, restarted, err := r.maybeRestart()
		pausedAdj += elapsed
		if err != nil {
			return err
		}
		if restarted && !b.EnsureSearchContext() {
			return nil
		}

		r.penalty.Check()

		got, cont, err := b.PurchaseCycle(task)
		r.recordGot(task, got)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// runTimeWindow 时间窗驱动：每轮选第一个窗口命中的任务
func (r *TaskRunner) runTimeWindow() error {
	for !r.ctrl.Stopped() {
		var sel *store.Task
		for _, t := range r.tasks.Tasks() {
			if t.Runnable() && WindowContains(t.TimeStart, t.TimeEnd, r.now()) {
				sel = t
				break
			}
		}
		if sel == nil {
			if r.idleLog.Allow() {
				logger.Debug("当前无命中时间窗的任务，待机")
			}
			time.Sleep(idleSleep)
			continue
		}
		if err := r.runWindow(sel); err != nil {
			r.ctrl.Stop()
			return err
		}
	}
	return nil
}

// runWindow 在任务的时间窗内持续购买，窗口失配即退出
func (r *TaskRunner) runWindow(task *store.Task) error {
	g := r.goods.ByID(task.ItemID)
	b := r.buyerFor(g)

	if !b.EnsureSearchContext() {
		time.Sleep(idleSleep)
		return nil
	}

	for !r.ctrl.Stopped() && task.Runnable() && WindowContains(task.TimeStart, task.TimeEnd, r.now()) {
		_, restarted, err := r.maybeRestart()
		if err != nil {
			return err
		}
		if restarted && !b.EnsureSearchContext() {
			return nil
		}

		r.penalty.Check()

		got, cont, err := b.PurchaseCycle(task)
		r.recordGot(task, got)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
