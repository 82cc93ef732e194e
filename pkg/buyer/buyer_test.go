package buyer

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/config"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/ocr"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/store"
)

// ---- 决策 ----

func TestLimitFor(t *testing.T) {
	tests := []struct {
		threshold int
		premium   float64
		want      int
	}{
		{100, 10, 110},
		{50, 20, 60},
		{0, 50, 0},   // 基准价 0 表示路径关闭
		{100, 0, 100},
		{333, 10, 366}, // 33.3 四舍五入
	}
	for _, tt := range tests {
		if got := LimitFor(tt.threshold, tt.premium); got != tt.want {
			t.Errorf("LimitFor(%d, %v) = %d, want %d", tt.threshold, tt.premium, got, tt.want)
		}
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		price int
		task  store.Task
		want  Decision
	}{
		{"普通限额内", 105, store.Task{PriceThreshold: 100, PricePremiumPct: 10}, DecideNormal},
		{"普通限额边界", 110, store.Task{PriceThreshold: 100, PricePremiumPct: 10}, DecideNormal},
		{"超过普通限额", 115, store.Task{PriceThreshold: 100, PricePremiumPct: 10}, DecideReject},
		{"补货限额内且普通关闭", 55, store.Task{RestockPrice: 50, RestockPremiumPct: 20}, DecideRestock},
		{"补货优先于普通", 55, store.Task{PriceThreshold: 100, PricePremiumPct: 10, RestockPrice: 50, RestockPremiumPct: 20}, DecideRestock},
		{"超补货但在普通内", 80, store.Task{PriceThreshold: 100, PricePremiumPct: 10, RestockPrice: 50, RestockPremiumPct: 20}, DecideNormal},
		{"两路径都关闭", 10, store.Task{}, DecideReject},
		{"无效价格", 0, store.Task{PriceThreshold: 100}, DecideReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.price, &tt.task); got != tt.want {
				t.Errorf("Decide(%d) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestExpectedFloor(t *testing.T) {
	if got := ExpectedFloor(&store.Task{PriceThreshold: 100, RestockPrice: 50}); got != 100 {
		t.Errorf("应优先普通基准价, got %d", got)
	}
	if got := ExpectedFloor(&store.Task{RestockPrice: 50}); got != 50 {
		t.Errorf("普通关闭时退回补货价, got %d", got)
	}
}

// ---- 缓存 ----

func TestSessionCache(t *testing.T) {
	c := NewSessionCache()
	r := screen.Rect{X: 1, Y: 2, W: 3, H: 4}

	c.SetListItem("g1", r)
	if got, ok := c.ListItem("g1"); !ok || got != r {
		t.Error("列表项缓存读写失败")
	}

	c.SetButton(BtnBuy, r)
	if !c.HasButtons() {
		t.Error("按钮缓存后 HasButtons 应为真")
	}

	c.Invalidate("g1")
	if _, ok := c.ListItem("g1"); ok {
		t.Error("Invalidate 后列表项应消失")
	}
	if _, ok := c.Button(BtnBuy); !ok {
		t.Error("Invalidate 不应清按钮缓存")
	}

	c.InvalidateAll()
	if c.HasButtons() {
		t.Error("InvalidateAll 后按钮缓存应清空")
	}
}

// ---- 状态机 ----

type fakeOps struct {
	visible map[string]screen.Rect
	clicks  []screen.Point
	typed   []string
	keys    []string
}

func newFakeOps() *fakeOps {
	return &fakeOps{visible: make(map[string]screen.Rect)}
}

func (f *fakeOps) show(path string, r screen.Rect) { f.visible[path] = r }
func (f *fakeOps) hide(path string)                { delete(f.visible, path) }

func (f *fakeOps) Locate(tpl config.TemplateRef, region *screen.Rect, timeout time.Duration) (screen.Rect, bool) {
	r, ok := f.visible[tpl.Path]
	return r, ok
}
func (f *fakeOps) ClickCenter(r screen.Rect) { f.clicks = append(f.clicks, r.Center()) }
func (f *fakeOps) ClickAt(x, y int)          { f.clicks = append(f.clicks, screen.Point{X: x, Y: y}) }
func (f *fakeOps) MoveTo(x, y int)           {}
func (f *fakeOps) TypeText(text string)      { f.typed = append(f.typed, text) }
func (f *fakeOps) KeyTap(key string)         { f.keys = append(f.keys, key) }
func (f *fakeOps) CaptureRegion(r screen.Rect) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, r.W, r.H)), nil
}
func (f *fakeOps) Size() (int, int) { return 1920, 1080 }

type fakeReader struct {
	prices []int
	errs   []error
	calls  int
}

func (f *fakeReader) ReadWithRounds(anchor screen.Rect, exchangeable bool, expectedFloor int, allowBottom bool) (int, error) {
	i := f.calls
	f.calls++
	var p int
	var err error
	if i < len(f.prices) {
		p = f.prices[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return p, err
}

type recordSink struct {
	prices    []int
	purchases []int
	usedMax   []bool
}

func (s *recordSink) AppendPrice(itemID, name string, price int, category string) {
	s.prices = append(s.prices, price)
}
func (s *recordSink) AppendPurchase(itemID, name string, price, qty int, taskID, category string, usedMax bool) {
	s.purchases = append(s.purchases, qty)
	s.usedMax = append(s.usedMax, usedMax)
}

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Timings = config.Timings{StepDelayMS: 1, PostCloseDetailMS: 1, PostSuccessClickMS: 1, PostNavMS: 1}
	cfg.Tuning.BuyResultTimeoutSec = 0.05
	cfg.Tuning.BuyResultStepSec = 0.005
	return cfg
}

func testGoods() *store.Goods {
	return &store.Goods{
		ID:          "g1",
		Name:        "测试商品",
		SearchName:  "测试",
		ImagePath:   "images/goods_g1.png",
		BigCategory: "装备",
	}
}

// setupDetail 让列表项、购买/关闭按钮与成功横幅都可见
func setupDetail(ops *fakeOps, cfg *config.Config, goods *store.Goods) {
	ops.show(goods.ImagePath, screen.Rect{X: 400, Y: 300, W: 120, H: 80})
	ops.show(cfg.Template(config.TplBtnBuy).Path, screen.Rect{X: 1500, Y: 900, W: 200, H: 60})
	ops.show(cfg.Template(config.TplBtnClose).Path, screen.Rect{X: 1800, Y: 100, W: 40, H: 40})
}

func TestPurchaseCycleNormalSuccess(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)
	ops.show(cfg.Template(config.TplBuyOK).Path, screen.Rect{X: 900, Y: 500, W: 100, H: 40})

	sink := &recordSink{}
	b := NewBuyer(ops, cfg, &fakeReader{prices: []int{105}}, goods, sink, nil)
	task := &store.Task{ID: "t1", PriceThreshold: 100, PricePremiumPct: 10}

	got, cont, err := b.PurchaseCycle(task)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got != 1 || !cont {
		t.Errorf("got=%d cont=%v, want 1 true", got, cont)
	}
	if len(sink.prices) != 1 || sink.prices[0] != 105 {
		t.Errorf("价格历史 = %v", sink.prices)
	}
	if len(sink.purchases) != 1 || sink.purchases[0] != 1 {
		t.Errorf("购买历史 = %v", sink.purchases)
	}
	// 成功后应缓存列表项与按钮
	if _, ok := b.Cache().ListItem("g1"); !ok {
		t.Error("成功后应缓存列表项位置")
	}
	if !b.Cache().HasButtons() {
		t.Error("成功后应缓存详情按钮")
	}
}

func TestPurchaseCycleNormalLoopsUntilReject(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)
	ops.show(cfg.Template(config.TplBuyOK).Path, screen.Rect{X: 900, Y: 500, W: 100, H: 40})

	// 面板保持打开：成功后回到读价，直到价格失守
	reader := &fakeReader{prices: []int{105, 105, 115}}
	sink := &recordSink{}
	b := NewBuyer(ops, cfg, reader, goods, sink, nil)
	task := &store.Task{ID: "t1", PriceThreshold: 100, PricePremiumPct: 10}

	got, cont, err := b.PurchaseCycle(task)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got != 2 || !cont {
		t.Errorf("got=%d cont=%v, want 2 true", got, cont)
	}
	if reader.calls != 3 {
		t.Errorf("每次成功后都应重读价格, calls = %d", reader.calls)
	}
	if len(sink.purchases) != 2 {
		t.Errorf("购买历史 = %v", sink.purchases)
	}
}

func TestPurchaseCycleNormalStopsAtTarget(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)
	ops.show(cfg.Template(config.TplBuyOK).Path, screen.Rect{X: 900, Y: 500, W: 100, H: 40})

	// 价格一直合格，但目标量只差 2
	reader := &fakeReader{prices: []int{105, 105, 105, 105}}
	b := NewBuyer(ops, cfg, reader, goods, &recordSink{}, nil)
	task := &store.Task{ID: "t1", PriceThreshold: 100, PricePremiumPct: 10, TargetTotal: 10, Purchased: 8}

	got, _, err := b.PurchaseCycle(task)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("达到目标量应停止, got = %d, want 2", got)
	}
}

func TestPurchaseCycleReject(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)

	sink := &recordSink{}
	b := NewBuyer(ops, cfg, &fakeReader{prices: []int{115}}, goods, sink, nil)
	task := &store.Task{ID: "t1", PriceThreshold: 100, PricePremiumPct: 10}

	got, cont, err := b.PurchaseCycle(task)
	if err != nil || got != 0 || !cont {
		t.Errorf("got=%d cont=%v err=%v, want 0 true nil", got, cont, err)
	}
	if len(sink.purchases) != 0 {
		t.Error("拒绝时不应有购买记录")
	}
	if len(sink.prices) != 1 {
		t.Error("价格仍应记录")
	}
}

func TestPurchaseCycleBuyFailure(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)
	ops.show(cfg.Template(config.TplBuyFail).Path, screen.Rect{X: 900, Y: 500, W: 100, H: 40})

	b := NewBuyer(ops, cfg, &fakeReader{prices: []int{105}}, goods, &recordSink{}, nil)
	task := &store.Task{ID: "t1", PriceThreshold: 100, PricePremiumPct: 10}

	got, cont, err := b.PurchaseCycle(task)
	if err != nil || got != 0 || !cont {
		t.Errorf("下单失败应继续下一轮: got=%d cont=%v err=%v", got, cont, err)
	}
}

func TestPurchaseCycleOCRMissContinues(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)

	b := NewBuyer(ops, cfg, &fakeReader{prices: []int{0}}, goods, &recordSink{}, nil)
	got, cont, err := b.PurchaseCycle(&store.Task{ID: "t1", PriceThreshold: 100})
	if err != nil || got != 0 || !cont {
		t.Errorf("读价失败是正常分支: got=%d cont=%v err=%v", got, cont, err)
	}
}

func TestPurchaseCycleTransportFatal(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)

	reader := &fakeReader{errs: []error{&ocr.TransportError{Engine: "umi", Err: errors.New("x")}}}
	b := NewBuyer(ops, cfg, reader, goods, &recordSink{}, nil)

	_, cont, err := b.PurchaseCycle(&store.Task{ID: "t1", PriceThreshold: 100})
	if cont || !ocr.IsTransport(err) {
		t.Errorf("传输故障应终止: cont=%v err=%v", cont, err)
	}
}

func TestPurchaseCycleDetailNotFound(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	// 什么都不可见：开详情失败，恢复搜索也找不到

	b := NewBuyer(ops, cfg, &fakeReader{}, goods, &recordSink{}, nil)
	got, cont, err := b.PurchaseCycle(&store.Task{ID: "t1", PriceThreshold: 100})
	if err != nil || got != 0 || !cont {
		t.Errorf("找不到商品是正常分支: got=%d cont=%v err=%v", got, cont, err)
	}
}

func TestRestockLoop(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)
	ops.show(cfg.Template(config.TplBuyOK).Path, screen.Rect{X: 900, Y: 500, W: 100, H: 40})

	// 首读 55 进入补货；循环内重读 55、70，70 超出限额 60 退出
	reader := &fakeReader{prices: []int{55, 55, 70}}
	sink := &recordSink{}
	b := NewBuyer(ops, cfg, reader, goods, sink, nil)
	task := &store.Task{ID: "t1", RestockPrice: 50, RestockPremiumPct: 20}

	got, cont, err := b.PurchaseCycle(task)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got != 2 || !cont {
		t.Errorf("got=%d cont=%v, want 2 true", got, cont)
	}
	// 非弹药类目每会话只输入一次固定数量
	if len(ops.typed) != 1 || ops.typed[0] != "5" {
		t.Errorf("补货应输入一次数量 5, typed = %v", ops.typed)
	}
	if len(sink.usedMax) != 2 || sink.usedMax[0] {
		t.Errorf("非弹药不应用最大按钮: %v", sink.usedMax)
	}
}

func TestRestockLoopAmmoUsesMax(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	goods.BigCategory = "弹药"
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)
	ops.show(cfg.Template(config.TplBtnMax).Path, screen.Rect{X: 1400, Y: 800, W: 60, H: 40})
	ops.show(cfg.Template(config.TplBuyOK).Path, screen.Rect{X: 900, Y: 500, W: 100, H: 40})

	reader := &fakeReader{prices: []int{55, 70}}
	sink := &recordSink{}
	b := NewBuyer(ops, cfg, reader, goods, sink, nil)
	task := &store.Task{ID: "t1", RestockPrice: 50, RestockPremiumPct: 20}

	got, _, err := b.PurchaseCycle(task)
	if err != nil {
		t.Fatal(err)
	}
	// 弹药 + 最大按钮一次 120
	if got != 120 {
		t.Errorf("got = %d, want 120", got)
	}
	if len(sink.usedMax) != 1 || !sink.usedMax[0] {
		t.Errorf("弹药应使用最大按钮: %v", sink.usedMax)
	}
	if len(ops.typed) != 0 {
		t.Errorf("弹药不应输入数量: %v", ops.typed)
	}
}

func TestRestockLoopStopsAtTarget(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)
	ops.show(cfg.Template(config.TplBuyOK).Path, screen.Rect{X: 900, Y: 500, W: 100, H: 40})
	ops.show(cfg.Template(config.TplBtnHome).Path, screen.Rect{X: 50, Y: 50, W: 60, H: 40})

	// 价格一直在限额内，但目标量只差 2
	reader := &fakeReader{prices: []int{55, 55, 55, 55, 55}}
	b := NewBuyer(ops, cfg, reader, goods, &recordSink{}, nil)
	task := &store.Task{ID: "t1", RestockPrice: 50, RestockPremiumPct: 20, TargetTotal: 10, Purchased: 8}

	got, _, err := b.PurchaseCycle(task)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("达到目标量应停止, got = %d, want 2", got)
	}
}

type pausedOnce struct {
	paused bool
}

func (p *pausedOnce) Stopped() bool { return false }
func (p *pausedOnce) WaitWhilePaused() bool {
	if !p.paused {
		p.paused = true
		return true
	}
	return false
}

func TestPurchaseCyclePauseInvalidatesCache(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	setupDetail(ops, cfg, goods)

	b := NewBuyer(ops, cfg, &fakeReader{prices: []int{0}}, goods, &recordSink{}, &pausedOnce{})
	b.Cache().SetListItem("g1", screen.Rect{X: 1, Y: 1, W: 1, H: 1})
	b.Cache().SetButton(BtnBuy, screen.Rect{X: 2, Y: 2, W: 2, H: 2})

	b.PurchaseCycle(&store.Task{ID: "t1", PriceThreshold: 100})

	// 暂停后旧缓存应被清掉（之后 openDetail 会重建）
	if r, _ := b.Cache().ListItem("g1"); (r == screen.Rect{X: 1, Y: 1, W: 1, H: 1}) {
		t.Error("暂停后旧列表项缓存应失效")
	}
}

type stoppedCtrl struct{}

func (stoppedCtrl) Stopped() bool         { return true }
func (stoppedCtrl) WaitWhilePaused() bool { return false }

func TestPurchaseCycleStopped(t *testing.T) {
	cfg := fastConfig()
	b := NewBuyer(newFakeOps(), cfg, &fakeReader{}, testGoods(), &recordSink{}, stoppedCtrl{})
	got, cont, err := b.PurchaseCycle(&store.Task{ID: "t1"})
	if got != 0 || cont || err != nil {
		t.Errorf("停止信号应立即返回: got=%d cont=%v err=%v", got, cont, err)
	}
}

func TestEnsureSearchContextOnMarket(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	// 已在市场页：直接搜索，不做导航
	ops.show(cfg.Template(config.TplMarketIndicator).Path, screen.Rect{X: 10, Y: 10, W: 50, H: 50})
	ops.show(cfg.Template(config.TplInputSearch).Path, screen.Rect{X: 300, Y: 100, W: 200, H: 30})
	ops.show(cfg.Template(config.TplBtnSearch).Path, screen.Rect{X: 520, Y: 100, W: 60, H: 30})

	b := NewBuyer(ops, cfg, &fakeReader{}, goods, &recordSink{}, nil)
	if !b.EnsureSearchContext() {
		t.Fatal("搜索上下文建立失败")
	}
	if len(ops.typed) != 1 || ops.typed[0] != "测试" {
		t.Errorf("应输入搜索词: %v", ops.typed)
	}
}

func TestEnsureSearchContextFromHome(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	// 在主页：先进市场再搜索
	ops.show(cfg.Template(config.TplHomeIndicator).Path, screen.Rect{X: 10, Y: 10, W: 50, H: 50})
	ops.show(cfg.Template(config.TplBtnMarket).Path, screen.Rect{X: 100, Y: 200, W: 80, H: 40})
	ops.show(cfg.Template(config.TplInputSearch).Path, screen.Rect{X: 300, Y: 100, W: 200, H: 30})
	ops.show(cfg.Template(config.TplBtnSearch).Path, screen.Rect{X: 520, Y: 100, W: 60, H: 30})

	b := NewBuyer(ops, cfg, &fakeReader{}, goods, &recordSink{}, nil)
	if !b.EnsureSearchContext() {
		t.Fatal("搜索上下文建立失败")
	}
	// 市场入口 + 搜索框 + 搜索按钮
	if len(ops.clicks) != 3 {
		t.Errorf("应先点市场入口, clicks = %v", ops.clicks)
	}
}

func TestEnsureSearchContextResetsUnknownPage(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	// 两个页面指示都不可见：回主页重进市场
	ops.show(cfg.Template(config.TplBtnHome).Path, screen.Rect{X: 50, Y: 50, W: 60, H: 40})
	ops.show(cfg.Template(config.TplBtnMarket).Path, screen.Rect{X: 100, Y: 200, W: 80, H: 40})
	ops.show(cfg.Template(config.TplInputSearch).Path, screen.Rect{X: 300, Y: 100, W: 200, H: 30})
	ops.show(cfg.Template(config.TplBtnSearch).Path, screen.Rect{X: 520, Y: 100, W: 60, H: 30})

	b := NewBuyer(ops, cfg, &fakeReader{}, goods, &recordSink{}, nil)
	if !b.EnsureSearchContext() {
		t.Fatal("重置后应能建立搜索上下文")
	}
	// 主页 + 市场入口 + 搜索框 + 搜索按钮
	if len(ops.clicks) != 4 {
		t.Errorf("应走主页→市场重置, clicks = %v", ops.clicks)
	}
}

func TestEnsureSearchContextClearsStaleDetail(t *testing.T) {
	cfg := fastConfig()
	goods := testGoods()
	ops := newFakeOps()
	// 残留的详情面板（购买+关闭都可见）应先被关掉
	ops.show(cfg.Template(config.TplBtnBuy).Path, screen.Rect{X: 1500, Y: 900, W: 200, H: 60})
	ops.show(cfg.Template(config.TplBtnClose).Path, screen.Rect{X: 1800, Y: 100, W: 40, H: 40})
	ops.show(cfg.Template(config.TplMarketIndicator).Path, screen.Rect{X: 10, Y: 10, W: 50, H: 50})
	ops.show(cfg.Template(config.TplInputSearch).Path, screen.Rect{X: 300, Y: 100, W: 200, H: 30})
	ops.show(cfg.Template(config.TplBtnSearch).Path, screen.Rect{X: 520, Y: 100, W: 60, H: 30})

	b := NewBuyer(ops, cfg, &fakeReader{}, goods, &recordSink{}, nil)
	if !b.EnsureSearchContext() {
		t.Fatal("搜索上下文建立失败")
	}
	closeCenter := (screen.Rect{X: 1800, Y: 100, W: 40, H: 40}).Center()
	if len(ops.clicks) == 0 || ops.clicks[0] != closeCenter {
		t.Errorf("应先点关闭按钮清掉残留面板, clicks = %v", ops.clicks)
	}
}

func TestEnsureSearchContextUnknownPageFails(t *testing.T) {
	cfg := fastConfig()
	b := NewBuyer(newFakeOps(), cfg, &fakeReader{}, testGoods(), &recordSink{}, nil)
	if b.EnsureSearchContext() {
		t.Error("页面状态不明且无法重置应失败")
	}
}
