package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendPriceAndQuery(t *testing.T) {
	s := openTestStore(t)
	s.AppendPrice("g1", "BP", 105, "弹药")

	recs, err := s.RecentPrices(context.Background(), "g1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("记录数 = %d, want 1", len(recs))
	}
	if recs[0].Price != 105 || recs[0].Category != "弹药" {
		t.Errorf("记录内容 = %+v", recs[0])
	}
}

func TestAppendPriceDedup(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AppendPrice("g1", "BP", 105, "弹药")
	// 2 秒内同价重复，丢弃
	s.now = func() time.Time { return base.Add(time.Second) }
	s.AppendPrice("g1", "BP", 105, "弹药")

	recs, _ := s.RecentPrices(context.Background(), "g1", 10)
	if len(recs) != 1 {
		t.Errorf("同价去重后记录数 = %d, want 1", len(recs))
	}
}

func TestAppendPriceThrottleSmallChange(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AppendPrice("g1", "BP", 10000, "弹药")
	// 10 秒窗口内的微小波动（<100 且 <2%）不记录
	s.now = func() time.Time { return base.Add(5 * time.Second) }
	s.AppendPrice("g1", "BP", 10050, "弹药")

	recs, _ := s.RecentPrices(context.Background(), "g1", 10)
	if len(recs) != 1 {
		t.Errorf("微小波动应被节流, 记录数 = %d", len(recs))
	}

	// 明显变化立即记录
	s.AppendPrice("g1", "BP", 12000, "弹药")
	recs, _ = s.RecentPrices(context.Background(), "g1", 10)
	if len(recs) != 2 {
		t.Errorf("明显变化应被记录, 记录数 = %d", len(recs))
	}
}

func TestAppendPriceAfterWindow(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AppendPrice("g1", "BP", 10000, "弹药")
	// 窗口之外，即使价格相同也记录
	s.now = func() time.Time { return base.Add(11 * time.Second) }
	s.AppendPrice("g1", "BP", 10000, "弹药")

	recs, _ := s.RecentPrices(context.Background(), "g1", 10)
	if len(recs) != 2 {
		t.Errorf("窗口外应正常记录, 记录数 = %d", len(recs))
	}
}

func TestAppendPurchase(t *testing.T) {
	s := openTestStore(t)
	s.AppendPurchase("g1", "BP", 105, 120, "t1", "弹药", true)

	recs, err := s.RecentPurchases(context.Background(), "g1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("记录数 = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Qty != 120 || r.TaskID != "t1" || !r.UsedMax {
		t.Errorf("记录内容 = %+v", r)
	}
}

func TestPriceThrottlePerItem(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AppendPrice("g1", "BP", 100, "弹药")
	s.AppendPrice("g2", "医疗包", 100, "医疗")

	r1, _ := s.RecentPrices(context.Background(), "g1", 10)
	r2, _ := s.RecentPrices(context.Background(), "g2", 10)
	if len(r1) != 1 || len(r2) != 1 {
		t.Errorf("节流应按商品独立: g1=%d g2=%d", len(r1), len(r2))
	}
}
