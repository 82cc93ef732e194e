package buyer

import (
	"strconv"
	"time"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/store"
)

// 详情验证与模板匹配超时
const (
	// cachedVerifyTimeout 缓存点击后确认详情已打开的窗口
	cachedVerifyTimeout = 250 * time.Millisecond
	// freshVerifyTimeout 新匹配点击后的确认窗口
	freshVerifyTimeout = time.Second
	// recoverLocateTimeout 恢复搜索后重新匹配列表项的窗口
	recoverLocateTimeout = time.Second
	// defaultListConfidence 商品列表项模板的默认置信度
	defaultListConfidence = 0.85
)

// Result 单次下单结果
type Result int

const (
	ResultUnknown Result = iota
	ResultSuccess
	ResultFailure
)

// PriceReader 均价读取能力
type PriceReader interface {
	ReadWithRounds(anchor screen.Rect, exchangeable bool, expectedFloor int, allowBottom bool) (int, error)
}

// Sink 历史记录落盘，fire-and-forget
type Sink interface {
	AppendPrice(itemID, name string, price int, category string)
	AppendPurchase(itemID, name string, price, qty int, taskID, category string, usedMax bool)
}

// NopSink 空历史落盘
type NopSink struct{}

func (NopSink) AppendPrice(string, string, int, string)                     {}
func (NopSink) AppendPurchase(string, string, int, int, string, string, bool) {}

// Control 协作式暂停/停止信号
type Control interface {
	Stopped() bool
	// WaitWhilePaused 暂停期间阻塞，返回期间是否发生过暂停
	WaitWhilePaused() bool
}

type nopControl struct{}

func (nopControl) Stopped() bool         { return false }
func (nopControl) WaitWhilePaused() bool { return false }

// Buyer 单商品购买执行器，一个实例服务一个商品
type Buyer struct {
	ops    screen.Ops
	cfg    *config.Config
	reader PriceReader
	goods  *store.Goods
	cache  *SessionCache
	sink   Sink
	ctrl   Control
}

// NewBuyer 创建购买执行器
func NewBuyer(ops screen.Ops, cfg *config.Config, reader PriceReader, goods *store.Goods, sink Sink, ctrl Control) *Buyer {
	if sink == nil {
		sink = NopSink{}
	}
	if ctrl == nil {
		ctrl = nopControl{}
	}
	return &Buyer{
		ops:    ops,
		cfg:    cfg,
		reader: reader,
		goods:  goods,
		cache:  NewSessionCache(),
		sink:   sink,
		ctrl:   ctrl,
	}
}

// Cache 暴露会话缓存，供调度器在暂停/重启后失效
func (b *Buyer) Cache() *SessionCache { return b.cache }

// Goods 当前商品
func (b *Buyer) Goods() *store.Goods { return b.goods }

func (b *Buyer) sleep(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

// EnsureSearchContext 确保市场页处于本商品的搜索结果状态
// 先清掉残留的详情面板/成功遮罩，再按页面状态导航：
// 已在市场页直接搜索；在主页则进市场；页面不明时回主页重进
func (b *Buyer) EnsureSearchContext() bool {
	b.clearObstacles()

	if _, onMarket := b.ops.Locate(b.cfg.Template(config.TplMarketIndicator), nil, 0); !onMarket {
		if _, onHome := b.ops.Locate(b.cfg.Template(config.TplHomeIndicator), nil, 0); onHome {
			if !b.clickTemplate(config.TplBtnMarket, 2*time.Second) {
				logger.Warn("[%s] 找不到市场入口", b.goods.Name)
				return false
			}
		} else if !b.resetToMarket() {
			return false
		}
	}

	input, ok := b.ops.Locate(b.cfg.Template(config.TplInputSearch), nil, 2*time.Second)
	if !ok {
		logger.Warn("[%s] 找不到搜索框", b.goods.Name)
		return false
	}
	b.ops.ClickCenter(input)
	b.sleep(b.cfg.Timings.StepDelayMS)
	b.ops.TypeText(b.goods.SearchName)
	b.sleep(b.cfg.Timings.StepDelayMS)

	if btn, ok := b.ops.Locate(b.cfg.Template(config.TplBtnSearch), nil, time.Second); ok {
		b.ops.ClickCenter(btn)
	} else {
		b.ops.KeyTap("enter")
	}
	b.sleep(b.cfg.Timings.PostNavMS)
	logger.Info("[%s] 已执行搜索: %s", b.goods.Name, b.goods.SearchName)
	return true
}

// clearObstacles 清理挡住搜索框的残留界面
// 成功遮罩先点掉；购买与关闭按钮同时可见说明详情面板没关干净
func (b *Buyer) clearObstacles() {
	if _, ok := b.ops.Locate(b.cfg.Template(config.TplBuyOK), nil, 0); ok {
		b.dismissOverlay()
	}
	if _, buyVis := b.ops.Locate(b.cfg.Template(config.TplBtnBuy), nil, 0); buyVis {
		if _, closeVis := b.ops.Locate(b.cfg.Template(config.TplBtnClose), nil, 0); closeVis {
			b.closeDetail()
		}
	}
}

// resetToMarket 页面状态不明时回主页再进市场
// 搜索框随后的定位失败会兜住重置无效的情况
func (b *Buyer) resetToMarket() bool {
	if !b.clickTemplate(config.TplBtnHome, 2*time.Second) {
		logger.Warn("[%s] 页面状态不明且找不到主页入口", b.goods.Name)
		return false
	}
	if !b.clickTemplate(config.TplBtnMarket, 2*time.Second) {
		logger.Warn("[%s] 找不到市场入口", b.goods.Name)
		return false
	}
	return true
}

// clickTemplate 定位并点击模板，成功后按导航间隔等待
func (b *Buyer) clickTemplate(key string, timeout time.Duration) bool {
	r, ok := b.ops.Locate(b.cfg.Template(key), nil, timeout)
	if !ok {
		return false
	}
	b.ops.ClickCenter(r)
	b.sleep(b.cfg.Timings.PostNavMS)
	return true
}

// PurchaseCycle 执行一轮购买
// 详情面板打开期间反复走 读价 → 决策 → 下单：普通买入成功后回到读价，
// 直到价格失守、下单失败或达到目标量才关面板结束本轮。
// 返回本轮购入数量、是否可以继续下一轮、以及致命错误（仅 OCR 传输故障）
func (b *Buyer) PurchaseCycle(task *store.Task) (got int, cont bool, err error) {
	if b.ctrl.Stopped() {
		return 0, false, nil
	}
	if b.ctrl.WaitWhilePaused() {
		// 暂停期间画面可能被动过，缓存不可信
		b.cache.InvalidateAll()
	}
	if b.ctrl.Stopped() {
		return 0, false, nil
	}

	buyRect, ok := b.openDetail()
	if !ok {
		return 0, true, nil
	}

	for !b.ctrl.Stopped() {
		priceVal, err := b.reader.ReadWithRounds(buyRect, b.goods.Exchangeable, ExpectedFloor(task), true)
		if err != nil {
			b.closeDetail()
			return got, false, err
		}
		if priceVal <= 0 {
			break
		}
		b.sink.AppendPrice(b.goods.ID, b.goods.Name, priceVal, b.goods.BigCategory)

		decision := Decide(priceVal, task)
		logger.Debug("[%s] 均价 %d, 决策 %s", b.goods.Name, priceVal, decision)

		switch decision {
		case DecideRestock:
			rGot, rErr := b.restockLoop(task, buyRect, priceVal)
			got += rGot
			if rErr != nil {
				return got, false, rErr
			}
			return got, !b.ctrl.Stopped(), nil
		case DecideNormal:
			inc := b.submitOnce(task, priceVal, false)
			if inc == 0 {
				// 下单失败或结果未知，关面板结束本轮
				b.closeDetail()
				return got, true, nil
			}
			got += inc
			if task.TargetTotal > 0 && task.Purchased+got >= task.TargetTotal {
				b.closeDetail()
				return got, true, nil
			}
		default:
			b.closeDetail()
			return got, true, nil
		}
	}

	b.closeDetail()
	return got, true, nil
}

// openDetail 打开商品详情，返回购买按钮矩形
// 优先走缓存位置，点击后短窗验证；验证失败回退模板匹配；
// 本就没有缓存且匹配失败时，做一次恢复搜索再试
func (b *Buyer) openDetail() (screen.Rect, bool) {
	hadCache := false
	if r, ok := b.cache.ListItem(b.goods.ID); ok {
		hadCache = true
		b.ops.ClickCenter(r)
		if buy, ok := b.verifyDetail(cachedVerifyTimeout); ok {
			return buy, true
		}
		logger.Debug("[%s] 缓存位置失效", b.goods.Name)
		b.cache.Invalidate(b.goods.ID)
	}

	tpl := config.TemplateRef{Path: b.goods.ImagePath, Confidence: defaultListConfidence}
	if buy, ok := b.matchAndOpen(tpl, 0); ok {
		return buy, true
	}

	if !hadCache {
		// 列表可能翻页或搜索态丢失，恢复一次搜索再试
		if b.EnsureSearchContext() {
			if buy, ok := b.matchAndOpen(tpl, recoverLocateTimeout); ok {
				return buy, true
			}
		}
	}
	return screen.Rect{}, false
}

// matchAndOpen 模板匹配列表项并点开详情
func (b *Buyer) matchAndOpen(tpl config.TemplateRef, timeout time.Duration) (screen.Rect, bool) {
	r, ok := b.ops.Locate(tpl, nil, timeout)
	if !ok {
		return screen.Rect{}, false
	}
	b.cache.SetListItem(b.goods.ID, r)
	b.ops.ClickCenter(r)
	buy, ok := b.verifyDetail(freshVerifyTimeout)
	if !ok {
		b.cache.Invalidate(b.goods.ID)
		return screen.Rect{}, false
	}
	return buy, true
}

// verifyDetail 确认详情面板已打开（购买按钮可见）
// 首次成功时顺带缓存面板按钮位置
func (b *Buyer) verifyDetail(timeout time.Duration) (screen.Rect, bool) {
	buy, ok := b.ops.Locate(b.cfg.Template(config.TplBtnBuy), nil, timeout)
	if !ok {
		return screen.Rect{}, false
	}
	if !b.cache.HasButtons() {
		b.cache.SetButton(BtnBuy, buy)
		if r, ok := b.ops.Locate(b.cfg.Template(config.TplBtnClose), nil, 0); ok {
			b.cache.SetButton(BtnClose, r)
		}
		if b.cfg.IsMaxCategory(b.goods.BigCategory) {
			if r, ok := b.ops.Locate(b.cfg.Template(config.TplBtnMax), nil, 0); ok {
				b.cache.SetButton(BtnMax, r)
			}
		}
	} else {
		b.cache.SetButton(BtnBuy, buy)
	}
	return buy, true
}

// closeDetail 关闭详情面板
func (b *Buyer) closeDetail() {
	if r, ok := b.cache.Button(BtnClose); ok {
		b.ops.ClickCenter(r)
	} else if r, ok := b.ops.Locate(b.cfg.Template(config.TplBtnClose), nil, 0); ok {
		b.ops.ClickCenter(r)
	}
	b.sleep(b.cfg.Timings.PostCloseDetailMS)
}

// submitOnce 点击购买并等待结果横幅
// 成功返回本次进度增量，失败或结果未知返回 0
func (b *Buyer) submitOnce(task *store.Task, priceVal int, usedMax bool) int {
	buy, ok := b.cache.Button(BtnBuy)
	if !ok {
		return 0
	}
	b.ops.ClickCenter(buy)

	switch b.waitResult() {
	case ResultSuccess:
		b.dismissOverlay()
		inc := b.cfg.IncrementFor(b.goods.BigCategory, usedMax)
		b.sink.AppendPurchase(b.goods.ID, b.goods.Name, priceVal, inc, task.ID, b.goods.BigCategory, usedMax)
		logger.Info("[%s] 购买成功 价格=%d 数量=%d", b.goods.Name, priceVal, inc)
		return inc
	case ResultFailure:
		logger.Info("[%s] 购买失败 价格=%d", b.goods.Name, priceVal)
		return 0
	default:
		logger.Warn("[%s] 购买结果未知 价格=%d", b.goods.Name, priceVal)
		return 0
	}
}

// waitResult 在结果窗口内轮询成功/失败横幅
func (b *Buyer) waitResult() Result {
	timeout := time.Duration(b.cfg.Tuning.BuyResultTimeoutSec * float64(time.Second))
	step := time.Duration(b.cfg.Tuning.BuyResultStepSec * float64(time.Second))
	if step <= 0 {
		step = 20 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for {
		if _, ok := b.ops.Locate(b.cfg.Template(config.TplBuyOK), nil, 0); ok {
			return ResultSuccess
		}
		if _, ok := b.ops.Locate(b.cfg.Template(config.TplBuyFail), nil, 0); ok {
			return ResultFailure
		}
		if !time.Now().Before(deadline) {
			return ResultUnknown
		}
		time.Sleep(step)
	}
}

// dismissOverlay 清掉购买成功后的遮罩
// 鼠标先移开到右上角避免悬浮提示，再点击屏幕中心
func (b *Buyer) dismissOverlay() {
	w, h := b.ops.Size()
	b.ops.MoveTo(w-2, 2)
	b.sleep(b.cfg.Timings.StepDelayMS)
	b.ops.ClickAt(w/2, h/2)
	b.sleep(b.cfg.Timings.PostSuccessClickMS)
}

// restockLoop 补货循环：价格保持在补货限额内时连续买入
// 数量每会话设置一次：弹药类用“最大”按钮拉满，其余类目输入固定数量；
// 循环内重读价格禁用下半回退（详情面板布局固定）
func (b *Buyer) restockLoop(task *store.Task, buyRect screen.Rect, firstPrice int) (int, error) {
	limit := LimitFor(task.RestockPrice, task.RestockPremiumPct)
	floor := ExpectedFloor(task)

	usedMax := false
	if b.cfg.IsMaxCategory(b.goods.BigCategory) {
		if r, ok := b.cache.Button(BtnMax); ok {
			b.ops.ClickCenter(r)
			usedMax = true
		} else if r, ok := b.ops.Locate(b.cfg.Template(config.TplBtnMax), nil, 0); ok {
			b.cache.SetButton(BtnMax, r)
			b.ops.ClickCenter(r)
			usedMax = true
		}
	} else {
		// 详情面板打开后数量输入框持有焦点
		b.ops.TypeText(strconv.Itoa(b.cfg.Tuning.RestockTypeQty))
	}
	b.sleep(b.cfg.Timings.StepDelayMS)

	got := 0
	priceVal := firstPrice
	for {
		if b.ctrl.Stopped() {
			break
		}
		if priceVal <= 0 || priceVal > limit {
			break
		}

		inc := b.submitOnce(task, priceVal, usedMax)
		if inc == 0 {
			break
		}
		got += inc

		if task.TargetTotal > 0 && task.Purchased+got >= task.TargetTotal {
			logger.Info("[%s] 补货达到目标量 %d", b.goods.Name, task.TargetTotal)
			b.closeDetail()
			if r, ok := b.ops.Locate(b.cfg.Template(config.TplBtnHome), nil, 0); ok {
				b.ops.ClickCenter(r)
			}
			return got, nil
		}

		next, err := b.reader.ReadWithRounds(buyRect, b.goods.Exchangeable, floor, false)
		if err != nil {
			b.closeDetail()
			return got, err
		}
		priceVal = next
	}

	b.closeDetail()
	return got, nil
}
